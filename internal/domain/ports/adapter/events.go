package adapter

import (
	"context"
	"time"
)

const (
	EventPaymentCredited = "payment.credited"
	EventPaymentFailed   = "payment.failed"
	EventPromoRedeemed   = "promo.redeemed"
)

// Event is a fact about the ledger, published after the transaction that produced it commits.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Key        string         `json:"key"` // partition key, the owning user id
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

// EventPublisher delivers events on a best-effort basis.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}
