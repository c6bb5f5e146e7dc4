package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/models"
)

const testUser int64 = 42

func newPurchaseFixture(t *testing.T) (*PurchaseService, *GatewayMock, *LedgerMock, *SessionStore) {
	t.Helper()
	gateway := new(GatewayMock)
	ledger := new(LedgerMock)
	sessions := NewSessionStore(10 * time.Minute)
	return NewPurchaseService(sessions, gateway, ledger), gateway, ledger, sessions
}

func TestPurchase_SelectBundle(t *testing.T) {
	svc, _, _, sessions := newPurchaseFixture(t)

	session, err := svc.SelectBundle(testUser, "data", "DATA1GB1HR")
	require.NoError(t, err)
	require.Equal(t, models.StepAwaitingPhone, session.Step)
	require.Equal(t, "DATA1GB1HR", session.BundleCode)
	require.Equal(t, 19, session.Price)
	require.Same(t, session, sessions.Get(testUser))
}

func TestPurchase_SelectBundleUnknown(t *testing.T) {
	svc, _, _, sessions := newPurchaseFixture(t)

	_, err := svc.SelectBundle(testUser, "data", "NOPE")
	require.Error(t, err)
	require.Nil(t, sessions.Get(testUser))
}

func TestPurchase_ReselectOverwritesInFlightSession(t *testing.T) {
	svc, gateway, ledger, sessions := newPurchaseFixture(t)
	gateway.On("InitiateSTKPush", mock.Anything, "254712345678", 19, "DATA1GB1HR", mock.Anything).
		Return(&STKPushResult{CheckoutRequestID: "ws_abc123", ResponseCode: "0"}, nil)
	ledger.On("Insert", mock.Anything, mock.AnythingOfType("*models.Transaction")).Return(nil)

	_, err := svc.SelectBundle(testUser, "data", "DATA1GB1HR")
	require.NoError(t, err)
	_, err = svc.SubmitPhone(context.Background(), testUser, "0712345678")
	require.NoError(t, err)

	// Reselecting while a payment is in flight silently drops the tracking ID.
	_, err = svc.SelectBundle(testUser, "sms", "SMS20DAY")
	require.NoError(t, err)
	session := sessions.Get(testUser)
	require.Equal(t, models.StepAwaitingPhone, session.Step)
	require.Empty(t, session.CheckoutRequestID)
}

func TestPurchase_SubmitPhone(t *testing.T) {
	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		svc, _, _, _ := newPurchaseFixture(t)
		_, err := svc.SubmitPhone(ctx, testUser, "0712345678")
		require.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("invalid phone never reaches the gateway", func(t *testing.T) {
		svc, gateway, ledger, sessions := newPurchaseFixture(t)
		_, err := svc.SelectBundle(testUser, "data", "DATA1GB1HR")
		require.NoError(t, err)

		_, err = svc.SubmitPhone(ctx, testUser, "12345")
		require.ErrorIs(t, err, ErrInvalidPhone)
		require.Equal(t, models.StepAwaitingPhone, sessions.Get(testUser).Step)
		gateway.AssertNotCalled(t, "InitiateSTKPush", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		ledger.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("success normalizes phone and logs one pending row", func(t *testing.T) {
		svc, gateway, ledger, sessions := newPurchaseFixture(t)
		gateway.On("InitiateSTKPush", ctx, "254712345678", 19, "DATA1GB1HR", "Bingwa DATA1GB1HR").
			Return(&STKPushResult{CheckoutRequestID: "ws_abc123", ResponseCode: "0"}, nil)
		ledger.On("Insert", ctx, mock.MatchedBy(func(txn *models.Transaction) bool {
			return txn.UserID == testUser &&
				txn.Phone == "254712345678" &&
				txn.BundleCode == "DATA1GB1HR" &&
				txn.Amount == 19 &&
				txn.CheckoutRequestID == "ws_abc123" &&
				txn.Status == models.StatusPending
		})).Return(nil).Once()

		_, err := svc.SelectBundle(testUser, "data", "DATA1GB1HR")
		require.NoError(t, err)
		session, err := svc.SubmitPhone(ctx, testUser, "0712345678")
		require.NoError(t, err)

		require.Equal(t, models.StepAwaitingPayment, session.Step)
		require.Equal(t, "254712345678", session.Phone)
		require.Equal(t, "ws_abc123", session.CheckoutRequestID)
		require.Same(t, session, sessions.Get(testUser))
		ledger.AssertExpectations(t)
	})

	t.Run("gateway rejection keeps session awaiting phone", func(t *testing.T) {
		svc, gateway, ledger, sessions := newPurchaseFixture(t)
		gateway.On("InitiateSTKPush", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(&STKPushResult{ResponseCode: "1", ResponseDesc: "insufficient request rate"}, nil)

		_, err := svc.SelectBundle(testUser, "data", "DATA1GB1HR")
		require.NoError(t, err)
		_, err = svc.SubmitPhone(ctx, testUser, "0712345678")
		require.ErrorIs(t, err, ErrGateway)

		session := sessions.Get(testUser)
		require.Equal(t, models.StepAwaitingPhone, session.Step)
		require.Empty(t, session.CheckoutRequestID)
		ledger.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("transport failure keeps session awaiting phone", func(t *testing.T) {
		svc, gateway, _, sessions := newPurchaseFixture(t)
		gateway.On("InitiateSTKPush", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, ErrGateway)

		_, err := svc.SelectBundle(testUser, "data", "DATA1GB1HR")
		require.NoError(t, err)
		_, err = svc.SubmitPhone(ctx, testUser, "0712345678")
		require.ErrorIs(t, err, ErrGateway)
		require.Equal(t, models.StepAwaitingPhone, sessions.Get(testUser).Step)
	})
}

func TestPurchase_Resend(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*PurchaseService, *GatewayMock, *LedgerMock, *SessionStore) {
		svc, gateway, ledger, sessions := newPurchaseFixture(t)
		gateway.On("InitiateSTKPush", ctx, "254712345678", 19, "DATA1GB1HR", mock.Anything).
			Return(&STKPushResult{CheckoutRequestID: "ws_abc123", ResponseCode: "0"}, nil).Once()
		ledger.On("Insert", ctx, mock.AnythingOfType("*models.Transaction")).Return(nil)

		_, err := svc.SelectBundle(testUser, "data", "DATA1GB1HR")
		require.NoError(t, err)
		_, err = svc.SubmitPhone(ctx, testUser, "0712345678")
		require.NoError(t, err)
		return svc, gateway, ledger, sessions
	}

	t.Run("success replaces the tracking ID and logs a second row", func(t *testing.T) {
		svc, gateway, ledger, sessions := setup(t)
		gateway.On("InitiateSTKPush", ctx, "254712345678", 19, "DATA1GB1HR", mock.Anything).
			Return(&STKPushResult{CheckoutRequestID: "ws_def456", ResponseCode: "0"}, nil).Once()

		session, err := svc.Resend(ctx, testUser)
		require.NoError(t, err)
		require.Equal(t, "ws_def456", session.CheckoutRequestID)
		require.Equal(t, "ws_def456", sessions.Get(testUser).CheckoutRequestID)
		ledger.AssertNumberOfCalls(t, "Insert", 2)
	})

	t.Run("failure keeps the old tracking ID", func(t *testing.T) {
		svc, gateway, _, sessions := setup(t)
		gateway.On("InitiateSTKPush", ctx, "254712345678", 19, "DATA1GB1HR", mock.Anything).
			Return(nil, ErrGateway).Once()

		_, err := svc.Resend(ctx, testUser)
		require.ErrorIs(t, err, ErrGateway)
		require.Equal(t, "ws_abc123", sessions.Get(testUser).CheckoutRequestID)
	})

	t.Run("no session", func(t *testing.T) {
		svc, _, _, _ := newPurchaseFixture(t)
		_, err := svc.Resend(ctx, testUser)
		require.ErrorIs(t, err, ErrSessionExpired)
	})
}

func TestPurchase_Confirm(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, sessions *SessionStore) {
		sessions.Put(testUser, &models.Session{
			BundleCode:        "DATA1GB1HR",
			Price:             19,
			Step:              models.StepAwaitingPayment,
			Phone:             "254712345678",
			CheckoutRequestID: "ws_abc123",
		})
	}

	t.Run("ledger already completed", func(t *testing.T) {
		svc, _, ledger, sessions := newPurchaseFixture(t)
		seed(t, sessions)
		ledger.On("GetByCheckoutID", ctx, "ws_abc123").
			Return(&models.Transaction{CheckoutRequestID: "ws_abc123", Status: models.StatusCompleted}, nil)

		outcome, session, err := svc.Confirm(ctx, testUser)
		require.NoError(t, err)
		require.Equal(t, ConfirmCompleted, outcome)
		require.Equal(t, "254712345678", session.Phone)
		require.Nil(t, sessions.Get(testUser))

		// The session is gone, so any follow-on action is expired.
		_, _, err = svc.Confirm(ctx, testUser)
		require.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("ledger failed", func(t *testing.T) {
		svc, _, ledger, sessions := newPurchaseFixture(t)
		seed(t, sessions)
		ledger.On("GetByCheckoutID", ctx, "ws_abc123").
			Return(&models.Transaction{CheckoutRequestID: "ws_abc123", Status: models.StatusFailed}, nil)

		outcome, _, err := svc.Confirm(ctx, testUser)
		require.NoError(t, err)
		require.Equal(t, ConfirmFailed, outcome)
		require.Nil(t, sessions.Get(testUser))
	})

	t.Run("pending row settled by gateway query", func(t *testing.T) {
		svc, gateway, ledger, sessions := newPurchaseFixture(t)
		seed(t, sessions)
		ledger.On("GetByCheckoutID", ctx, "ws_abc123").
			Return(&models.Transaction{CheckoutRequestID: "ws_abc123", Status: models.StatusPending}, nil)
		gateway.On("QuerySTKStatus", ctx, "ws_abc123").Return(models.StatusCompleted, nil)
		ledger.On("UpdateStatus", ctx, "ws_abc123", models.StatusCompleted, "").Return(nil).Once()

		outcome, _, err := svc.Confirm(ctx, testUser)
		require.NoError(t, err)
		require.Equal(t, ConfirmCompleted, outcome)
		require.Nil(t, sessions.Get(testUser))
		ledger.AssertExpectations(t)
	})

	t.Run("still pending keeps session", func(t *testing.T) {
		svc, gateway, ledger, sessions := newPurchaseFixture(t)
		seed(t, sessions)
		ledger.On("GetByCheckoutID", ctx, "ws_abc123").
			Return(&models.Transaction{CheckoutRequestID: "ws_abc123", Status: models.StatusPending}, nil)
		gateway.On("QuerySTKStatus", ctx, "ws_abc123").Return(models.StatusPending, nil)

		outcome, _, err := svc.Confirm(ctx, testUser)
		require.NoError(t, err)
		require.Equal(t, ConfirmPending, outcome)
		require.NotNil(t, sessions.Get(testUser))
	})

	t.Run("query failure reports pending and keeps session", func(t *testing.T) {
		svc, gateway, ledger, sessions := newPurchaseFixture(t)
		seed(t, sessions)
		ledger.On("GetByCheckoutID", ctx, "ws_abc123").
			Return(&models.Transaction{CheckoutRequestID: "ws_abc123", Status: models.StatusPending}, nil)
		gateway.On("QuerySTKStatus", ctx, "ws_abc123").Return("", ErrGateway)

		outcome, _, err := svc.Confirm(ctx, testUser)
		require.NoError(t, err)
		require.Equal(t, ConfirmPending, outcome)
		require.NotNil(t, sessions.Get(testUser))
	})

	t.Run("unlogged transaction falls back to gateway query", func(t *testing.T) {
		svc, gateway, ledger, sessions := newPurchaseFixture(t)
		seed(t, sessions)
		ledger.On("GetByCheckoutID", ctx, "ws_abc123").Return(nil, ErrTransactionNotFound)
		gateway.On("QuerySTKStatus", ctx, "ws_abc123").Return(models.StatusCompleted, nil)

		outcome, _, err := svc.Confirm(ctx, testUser)
		require.NoError(t, err)
		require.Equal(t, ConfirmCompleted, outcome)
		require.Nil(t, sessions.Get(testUser))
		ledger.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no session", func(t *testing.T) {
		svc, _, _, _ := newPurchaseFixture(t)
		_, _, err := svc.Confirm(ctx, testUser)
		require.ErrorIs(t, err, ErrSessionExpired)
	})
}

func TestPurchase_Cancel(t *testing.T) {
	svc, _, _, sessions := newPurchaseFixture(t)
	sessions.Put(testUser, &models.Session{Step: models.StepAwaitingPayment, CheckoutRequestID: "ws_abc123"})

	require.NoError(t, svc.Cancel(testUser))
	require.Nil(t, sessions.Get(testUser))
	require.ErrorIs(t, svc.Cancel(testUser), ErrSessionExpired)
}

func TestPurchase_Transactions(t *testing.T) {
	ctx := context.Background()
	svc, _, ledger, _ := newPurchaseFixture(t)
	expected := []models.Transaction{{CheckoutRequestID: "ws_def456"}, {CheckoutRequestID: "ws_abc123"}}
	ledger.On("ListByUser", ctx, testUser).Return(expected, nil)

	txns, err := svc.Transactions(ctx, testUser)
	require.NoError(t, err)
	require.Equal(t, expected, txns)
}
