package services

import "errors"

var (
	// ErrInvalidPhone means the entered number matched neither accepted format.
	ErrInvalidPhone = errors.New("invalid phone format")

	// ErrAuth means the gateway token exchange failed.
	ErrAuth = errors.New("gateway authentication failed")

	// ErrGateway means the push-payment request did not reach the gateway.
	ErrGateway = errors.New("gateway request failed")

	// ErrSessionExpired means no live session exists for the user.
	ErrSessionExpired = errors.New("session expired")

	// ErrDuplicateTransaction means a ledger row with that checkout request ID
	// already exists.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrTransactionNotFound means a status update targeted an unknown
	// checkout request ID.
	ErrTransactionNotFound = errors.New("transaction not found")
)
