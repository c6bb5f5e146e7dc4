package models

import (
	"time"
)

const (
	StepAwaitingPhone   = "awaiting_phone"
	StepAwaitingPayment = "awaiting_payment"
)

// Session is one user's in-progress purchase. Single slot per user: a new
// bundle selection replaces whatever was here before.
type Session struct {
	BundleType        string
	BundleCode        string
	BundleName        string
	Price             int
	Step              string
	Phone             string
	CheckoutRequestID string
	UpdatedAt         time.Time
}
