package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/models"
)

type LedgerMock struct {
	mock.Mock
}

func (m *LedgerMock) Insert(ctx context.Context, txn *models.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *LedgerMock) UpdateStatus(ctx context.Context, checkoutRequestID, status, receipt string) error {
	args := m.Called(ctx, checkoutRequestID, status, receipt)
	return args.Error(0)
}

func (m *LedgerMock) GetByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	args := m.Called(ctx, checkoutRequestID)
	var txn *models.Transaction
	if v := args.Get(0); v != nil {
		txn = v.(*models.Transaction)
	}
	return txn, args.Error(1)
}

func (m *LedgerMock) ListByUser(ctx context.Context, userID int64) ([]models.Transaction, error) {
	args := m.Called(ctx, userID)
	var txns []models.Transaction
	if v := args.Get(0); v != nil {
		txns = v.([]models.Transaction)
	}
	return txns, args.Error(1)
}
