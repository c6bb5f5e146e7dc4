package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/models"
)

// LedgerService is the append-and-update log of payment attempts, one row
// per STK push, keyed uniquely by checkout request ID.
type LedgerService struct {
	collection *mongo.Collection
}

func NewLedgerService(db *mongo.Database) *LedgerService {
	return &LedgerService{collection: db.Collection("transactions")}
}

// EnsureIndexes creates the indexes the ledger relies on. The unique index
// on checkout_request_id is what turns a double insert into
// ErrDuplicateTransaction.
func (s *LedgerService) EnsureIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "checkout_request_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Insert records a freshly initiated payment. The row is written exactly
// once; a repeated checkout request ID is ErrDuplicateTransaction.
func (s *LedgerService) Insert(ctx context.Context, txn *models.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	if txn.Status == "" {
		txn.Status = models.StatusPending
	}

	if _, err := s.collection.InsertOne(ctx, txn); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateTransaction, txn.CheckoutRequestID)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	log.Info().
		Int64("user_id", txn.UserID).
		Str("checkout_request_id", txn.CheckoutRequestID).
		Str("bundle_code", txn.BundleCode).
		Msg("transaction logged")
	return nil
}

// UpdateStatus sets the outcome of an existing payment attempt. It never
// creates a row: a callback for an unknown checkout request ID is
// ErrTransactionNotFound.
func (s *LedgerService) UpdateStatus(ctx context.Context, checkoutRequestID, status, receipt string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if receipt != "" {
		update["mpesa_receipt"] = receipt
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"checkout_request_id": checkoutRequestID},
		bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", checkoutRequestID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, checkoutRequestID)
	}

	log.Info().
		Str("checkout_request_id", checkoutRequestID).
		Str("status", status).
		Msg("transaction status updated")
	return nil
}

// GetByCheckoutID fetches a single payment attempt.
func (s *LedgerService) GetByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var txn models.Transaction
	if err := s.collection.FindOne(ctx, bson.M{"checkout_request_id": checkoutRequestID}).Decode(&txn); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, checkoutRequestID)
		}
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", checkoutRequestID, err)
	}
	return &txn, nil
}

// ListByUser returns the user's payment attempts, newest first.
func (s *LedgerService) ListByUser(ctx context.Context, userID int64) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cur, err := s.collection.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions for user %d: %w", userID, err)
	}
	defer cur.Close(ctx)

	var txns []models.Transaction
	if err := cur.All(ctx, &txns); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	return txns, nil
}
