package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/config"
	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/models"
)

// Daraja STK query result codes. Anything else is treated as a failure.
const (
	stkResultPaid      = "0"
	stkErrProcessing   = "500.001.1001"
	timestampLayout    = "20060102150405"
	transactionType    = "CustomerPayBillOnline"
	defaultHTTPTimeout = 10 * time.Second
)

// MpesaClient talks to the Daraja sandbox/production API: OAuth token
// exchange, STK push initiation, and STK status query.
type MpesaClient struct {
	consumerKey    string
	consumerSecret string
	passkey        string
	shortcode      string
	baseURL        string
	callbackURL    string
	httpClient     *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewMpesaClient(cfg *config.Config) *MpesaClient {
	return &MpesaClient{
		consumerKey:    cfg.MpesaConsumerKey,
		consumerSecret: cfg.MpesaSecret,
		passkey:        cfg.MpesaPasskey,
		shortcode:      cfg.MpesaShortcode,
		baseURL:        cfg.MpesaBaseURL,
		callbackURL:    cfg.MpesaCallbackURL,
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// AccessToken exchanges the consumer key/secret for a bearer token. Tokens
// are cached until shortly before they expire.
func (c *MpesaClient) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("mpesa token request rejected")
		return "", fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access_token", ErrAuth)
	}

	ttl := 3600
	if n, err := strconv.Atoi(tokenResp.ExpiresIn); err == nil && n > 0 {
		ttl = n
	}
	c.token = tokenResp.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(ttl-60) * time.Second)
	return c.token, nil
}

// password derives the Lipa Na M-Pesa password for the given timestamp.
func (c *MpesaClient) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.shortcode + c.passkey + timestamp))
}

// InitiateSTKPush submits a push-payment request. Transport and auth
// failures come back as errors; a gateway rejection comes back as a result
// with a nonzero ResponseCode.
func (c *MpesaClient) InitiateSTKPush(ctx context.Context, phone string, amount int, accountRef, description string) (*STKPushResult, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format(timestampLayout)
	payload := map[string]interface{}{
		"BusinessShortCode": c.shortcode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   transactionType,
		"Amount":            amount,
		"PartyA":            phone,
		"PartyB":            c.shortcode,
		"PhoneNumber":       phone,
		"CallBackURL":       c.callbackURL,
		"AccountReference":  accountRef,
		"TransactionDesc":   description,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.ErrorCode == "" {
			return nil, fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
		}
		log.Warn().Str("error_code", errResp.ErrorCode).Str("error_message", errResp.ErrorMessage).Msg("stk push rejected")
		return &STKPushResult{ResponseCode: errResp.ErrorCode, ResponseDesc: errResp.ErrorMessage}, nil
	}

	var pushResp struct {
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	log.Info().
		Str("checkout_request_id", pushResp.CheckoutRequestID).
		Str("response_code", pushResp.ResponseCode).
		Msg("stk push submitted")

	return &STKPushResult{
		CheckoutRequestID: pushResp.CheckoutRequestID,
		ResponseCode:      pushResp.ResponseCode,
		ResponseDesc:      pushResp.ResponseDescription,
	}, nil
}

// QuerySTKStatus asks the gateway what became of an earlier push. The answer
// is mapped onto the ledger's status vocabulary: a transaction still on the
// customer's screen is pending, result code 0 is completed, everything else
// (cancelled, timed out, insufficient funds) is failed.
func (c *MpesaClient) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (string, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	timestamp := time.Now().Format(timestampLayout)
	payload := map[string]interface{}{
		"BusinessShortCode": c.shortcode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/mpesa/stkpushquery/v1/query", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			ErrorCode string `json:"errorCode"`
		}
		// Daraja answers 500 with this code while the push is still on the
		// customer's screen.
		if json.Unmarshal(raw, &errResp) == nil && errResp.ErrorCode == stkErrProcessing {
			return models.StatusPending, nil
		}
		return "", fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}

	var queryResp struct {
		ResultCode string `json:"ResultCode"`
		ResultDesc string `json:"ResultDesc"`
	}
	if err := json.Unmarshal(raw, &queryResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if queryResp.ResultCode == stkResultPaid {
		return models.StatusCompleted, nil
	}
	log.Info().
		Str("checkout_request_id", checkoutRequestID).
		Str("result_code", queryResp.ResultCode).
		Str("result_desc", queryResp.ResultDesc).
		Msg("stk query reports unpaid")
	return models.StatusFailed, nil
}
