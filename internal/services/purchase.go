package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/models"
)

// ConfirmOutcome is the result of a verified payment confirmation.
type ConfirmOutcome int

const (
	// ConfirmCompleted: the ledger or the gateway says the payment went
	// through; the session is gone.
	ConfirmCompleted ConfirmOutcome = iota
	// ConfirmPending: still waiting on the customer; the session survives so
	// the user can confirm again, resend, or cancel.
	ConfirmPending
	// ConfirmFailed: the payment was cancelled or failed; the session is gone.
	ConfirmFailed
)

// PurchaseService drives one user's purchase through
// bundle selection -> phone entry -> payment initiation -> confirmation.
type PurchaseService struct {
	sessions *SessionStore
	gateway  GatewayContract
	ledger   LedgerContract
}

func NewPurchaseService(sessions *SessionStore, gateway GatewayContract, ledger LedgerContract) *PurchaseService {
	return &PurchaseService{
		sessions: sessions,
		gateway:  gateway,
		ledger:   ledger,
	}
}

// SelectBundle starts a fresh session for the user. Any previous session,
// including one with a payment in flight, is discarded.
func (p *PurchaseService) SelectBundle(userID int64, category, code string) (*models.Session, error) {
	bundle, ok := models.FindBundle(category, code)
	if !ok {
		return nil, fmt.Errorf("unknown bundle %s/%s", category, code)
	}

	session := &models.Session{
		BundleType: category,
		BundleCode: bundle.Code,
		BundleName: bundle.Name,
		Price:      bundle.Price,
		Step:       models.StepAwaitingPhone,
	}
	p.sessions.Put(userID, session)

	log.Info().Int64("user_id", userID).Str("bundle_code", bundle.Code).Msg("bundle selected")
	return session, nil
}

// SubmitPhone validates the entered number and, if valid, initiates the STK
// push. The gateway is never called for a rejected number. On a successful
// initiation exactly one ledger row is written and the session moves to
// awaiting payment.
func (p *PurchaseService) SubmitPhone(ctx context.Context, userID int64, text string) (*models.Session, error) {
	session := p.sessions.Get(userID)
	if session == nil || session.Step != models.StepAwaitingPhone {
		return nil, ErrSessionExpired
	}

	phone, err := NormalizePhone(text)
	if err != nil {
		return nil, err
	}

	checkoutID, err := p.initiate(ctx, userID, phone, session)
	if err != nil {
		return nil, err
	}

	session.Phone = phone
	session.CheckoutRequestID = checkoutID
	session.Step = models.StepAwaitingPayment
	p.sessions.Put(userID, session)
	return session, nil
}

// Confirm verifies the payment before declaring success. The ledger is
// consulted first (the gateway callback may already have landed); a row
// still pending triggers a status query against the gateway. Only a
// completed payment removes the session with success.
func (p *PurchaseService) Confirm(ctx context.Context, userID int64) (ConfirmOutcome, *models.Session, error) {
	session := p.sessions.Get(userID)
	if session == nil || session.Step != models.StepAwaitingPayment {
		return ConfirmPending, nil, ErrSessionExpired
	}

	status := models.StatusPending
	txn, err := p.ledger.GetByCheckoutID(ctx, session.CheckoutRequestID)
	switch {
	case err == nil:
		status = txn.Status
	case errors.Is(err, ErrTransactionNotFound):
		// The initiation succeeded but the log write was lost; the gateway
		// still knows the attempt.
		log.Warn().Int64("user_id", userID).Str("checkout_request_id", session.CheckoutRequestID).Msg("confirm on unlogged transaction")
	default:
		return ConfirmPending, session, err
	}

	if status == models.StatusPending {
		queried, qerr := p.gateway.QuerySTKStatus(ctx, session.CheckoutRequestID)
		if qerr != nil {
			log.Warn().Err(qerr).Int64("user_id", userID).Msg("stk status query failed")
			p.sessions.Touch(userID)
			return ConfirmPending, session, nil
		}
		if queried != models.StatusPending && txn != nil {
			if uerr := p.ledger.UpdateStatus(ctx, session.CheckoutRequestID, queried, ""); uerr != nil {
				log.Warn().Err(uerr).Str("checkout_request_id", session.CheckoutRequestID).Msg("ledger update after query failed")
			}
		}
		status = queried
	}

	switch status {
	case models.StatusCompleted:
		p.sessions.Remove(userID)
		log.Info().Int64("user_id", userID).Str("checkout_request_id", session.CheckoutRequestID).Msg("purchase confirmed")
		return ConfirmCompleted, session, nil
	case models.StatusFailed:
		p.sessions.Remove(userID)
		return ConfirmFailed, session, nil
	default:
		p.sessions.Touch(userID)
		return ConfirmPending, session, nil
	}
}

// Resend issues a second, independent STK push for the same phone and
// bundle. A new ledger row is written and the session keeps only the newest
// checkout request ID; on failure the old one stays.
func (p *PurchaseService) Resend(ctx context.Context, userID int64) (*models.Session, error) {
	session := p.sessions.Get(userID)
	if session == nil || session.Step != models.StepAwaitingPayment {
		return nil, ErrSessionExpired
	}

	checkoutID, err := p.initiate(ctx, userID, session.Phone, session)
	if err != nil {
		return nil, err
	}

	session.CheckoutRequestID = checkoutID
	p.sessions.Put(userID, session)
	log.Info().Int64("user_id", userID).Str("checkout_request_id", checkoutID).Msg("stk push resent")
	return session, nil
}

// Cancel abandons the purchase. No cancellation signal goes to the gateway;
// an in-flight push simply expires on the customer's phone.
func (p *PurchaseService) Cancel(userID int64) error {
	if p.sessions.Get(userID) == nil {
		return ErrSessionExpired
	}
	p.sessions.Remove(userID)
	return nil
}

// Transactions returns the user's payment history, newest first.
func (p *PurchaseService) Transactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	return p.ledger.ListByUser(ctx, userID)
}

func (p *PurchaseService) initiate(ctx context.Context, userID int64, phone string, session *models.Session) (string, error) {
	res, err := p.gateway.InitiateSTKPush(ctx, phone, session.Price, session.BundleCode, "Bingwa "+session.BundleCode)
	if err != nil {
		return "", err
	}
	if res.ResponseCode != "0" {
		return "", fmt.Errorf("%w: gateway rejected request (code %s: %s)", ErrGateway, res.ResponseCode, res.ResponseDesc)
	}

	txn := &models.Transaction{
		UserID:            userID,
		Phone:             phone,
		BundleCode:        session.BundleCode,
		Amount:            session.Price,
		CheckoutRequestID: res.CheckoutRequestID,
		Status:            models.StatusPending,
	}
	if err := p.ledger.Insert(ctx, txn); err != nil {
		// The push already reached the customer; losing the log row must not
		// strand the purchase.
		log.Error().Err(err).Int64("user_id", userID).Str("checkout_request_id", res.CheckoutRequestID).Msg("ledger insert failed")
	}
	return res.CheckoutRequestID, nil
}
