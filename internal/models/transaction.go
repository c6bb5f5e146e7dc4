package models

import (
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction is one STK push attempt, keyed uniquely by CheckoutRequestID.
type Transaction struct {
	ID                string    `bson:"_id,omitempty" json:"id"`
	UserID            int64     `bson:"user_id" json:"user_id"`
	Phone             string    `bson:"phone" json:"phone"`
	BundleCode        string    `bson:"bundle_code" json:"bundle_code"`
	Amount            int       `bson:"amount" json:"amount"`
	CheckoutRequestID string    `bson:"checkout_request_id" json:"checkout_request_id"`
	Status            string    `bson:"status" json:"status"` // pending, completed, failed
	MpesaReceipt      string    `bson:"mpesa_receipt,omitempty" json:"mpesa_receipt,omitempty"`
	CreatedAt         time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at" json:"updated_at"`
}
