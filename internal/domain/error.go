package domain

import "errors"

var (
	// Lookup
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrForbidden     = errors.New("entity belongs to another user")

	// Validation: rejected before any mutation
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidSignature = errors.New("invalid gateway signature")
	ErrAmountMismatch   = errors.New("notified amount does not match payment")

	// Transient remote failures are retried by the next trigger
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// Invariant violations are never applied
	ErrInvalidTransition  = errors.New("invalid payment status transition")
	ErrInvariantViolation = errors.New("ledger invariant violation")

	// Persistence
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrCheckViolation     = errors.New("check constraint violated")

	// Business outcomes
	ErrInsufficientBalance = errors.New("insufficient generation balance")
	ErrPromoExhausted      = errors.New("promo code usage limit reached")
	ErrRateLimited         = errors.New("too many requests")
)
