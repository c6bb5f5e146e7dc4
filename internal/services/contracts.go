package services

import (
	"context"

	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/models"
)

// STKPushResult is the gateway's answer to a push-payment request. A nonzero
// ResponseCode is a rejection, not a transport failure.
type STKPushResult struct {
	CheckoutRequestID string
	ResponseCode      string
	ResponseDesc      string
}

// GatewayContract defines the payment gateway responsibility.
type GatewayContract interface {
	InitiateSTKPush(ctx context.Context, phone string, amount int, accountRef, description string) (*STKPushResult, error)
	QuerySTKStatus(ctx context.Context, checkoutRequestID string) (string, error)
}

// LedgerContract defines the transaction log responsibility.
type LedgerContract interface {
	Insert(ctx context.Context, txn *models.Transaction) error
	UpdateStatus(ctx context.Context, checkoutRequestID, status, receipt string) error
	GetByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Transaction, error)
}
