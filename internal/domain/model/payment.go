package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"telegram-generation-billing/internal/domain"
)

// PaymentStatus is a closed set; every switch over it must handle all three values.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending" // created, awaiting gateway confirmation
	PaymentStatusSuccess PaymentStatus = "success" // confirmed by the gateway; terminal
	PaymentStatusFailed  PaymentStatus = "failed"  // rejected, cancelled or aged out; terminal
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(s); st {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: payment status %q", domain.ErrInvalidArgument, s)
	}
}

func (s PaymentStatus) String() string { return string(s) }

// IsTerminal reports whether no further transition may leave s.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusSuccess, PaymentStatusFailed:
		return true
	case PaymentStatusPending:
		return false
	default:
		return false
	}
}

// NextStatus computes the status a payment in state from must take when the
// gateway reports to. Only pending->success and pending->failed change
// anything; any attempt to leave a terminal state returns ErrInvalidTransition
// together with the unchanged status.
func NextStatus(from, to PaymentStatus) (PaymentStatus, error) {
	switch from {
	case PaymentStatusPending:
		switch to {
		case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed:
			return to, nil
		default:
			return from, fmt.Errorf("%w: %s -> %q", domain.ErrInvalidTransition, from, to)
		}
	case PaymentStatusSuccess, PaymentStatusFailed:
		if to == from {
			return from, nil
		}
		return from, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	default:
		return from, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, from)
	}
}

// Payment records a purchase of generations through the gateway.
// Invariant: Credited implies Status == PaymentStatusSuccess.
type Payment struct {
	ID          string // UUID, also sent to the gateway as shp_payment_id
	UserID      string // UUID of the owning user
	Status      PaymentStatus
	Provider    string // e.g. "robokassa"
	Amount      int64  // minor units (kopecks)
	Currency    string
	Generations int64
	Credited    bool
	InvoiceNo   int64  // store-assigned and unique; the numeric invoice number sent to the gateway
	InvoiceID   string // gateway correlation id, unique; empty until a link exists
	PaymentLink string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewPayment builds a pending payment for the given tier.
func NewPayment(id, userID, provider string, tier PricingTier) (*Payment, error) {
	if id == "" || userID == "" || tier.Generations <= 0 || tier.Price <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Payment{
		ID:          id,
		UserID:      userID,
		Status:      PaymentStatusPending,
		Provider:    provider,
		Amount:      tier.Price,
		Currency:    tier.Currency,
		Generations: tier.Generations,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsSettled is the idempotency short-circuit: nothing can change a payment
// that failed, or that succeeded and was already credited.
func (p *Payment) IsSettled() bool {
	switch p.Status {
	case PaymentStatusFailed:
		return true
	case PaymentStatusSuccess:
		return p.Credited
	case PaymentStatusPending:
		return false
	default:
		return false
	}
}

// NeedsCredit reports a confirmed payment whose generations are still owed.
func (p *Payment) NeedsCredit() bool {
	return p.Status == PaymentStatusSuccess && !p.Credited
}

// Age is measured from creation.
func (p *Payment) Age(now time.Time) time.Duration { return now.Sub(p.CreatedAt) }

// FormatAmount renders minor units the way gateways expect ("150.00").
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// PricingTier is one purchasable package of generations.
type PricingTier struct {
	Generations int64  `yaml:"generations"`
	Price       int64  `yaml:"price"` // minor units
	Currency    string `yaml:"currency"`
	Subtext     string `yaml:"subtext"`
}
