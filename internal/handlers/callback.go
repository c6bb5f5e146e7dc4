package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/models"
	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/services"
)

// CallbackHandler receives the asynchronous Daraja STK result and settles
// the matching ledger row.
type CallbackHandler struct {
	ledger services.LedgerContract
}

func NewCallbackHandler(ledger services.LedgerContract) *CallbackHandler {
	return &CallbackHandler{ledger: ledger}
}

type stkCallbackPayload struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (p *stkCallbackPayload) receipt() string {
	for _, item := range p.Body.StkCallback.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			if s, ok := item.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

// HandleCallback maps ResultCode 0 to completed (with receipt) and anything
// else to failed. Daraja retries on non-2xx, so unknown checkout request IDs
// are logged and acknowledged rather than bounced.
func (h *CallbackHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	var payload stkCallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, `{"error":"invalid callback payload"}`, http.StatusBadRequest)
		return
	}

	cb := payload.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		http.Error(w, `{"error":"missing CheckoutRequestID"}`, http.StatusBadRequest)
		return
	}

	status := models.StatusFailed
	receipt := ""
	if cb.ResultCode == 0 {
		status = models.StatusCompleted
		receipt = payload.receipt()
	}

	log.Info().
		Str("checkout_request_id", cb.CheckoutRequestID).
		Int("result_code", cb.ResultCode).
		Str("result_desc", cb.ResultDesc).
		Msg("mpesa callback received")

	if err := h.ledger.UpdateStatus(r.Context(), cb.CheckoutRequestID, status, receipt); err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			log.Warn().Str("checkout_request_id", cb.CheckoutRequestID).Msg("callback for unknown transaction")
		} else {
			log.Error().Err(err).Str("checkout_request_id", cb.CheckoutRequestID).Msg("callback ledger update failed")
			http.Error(w, `{"error":"failed to record result"}`, http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}
