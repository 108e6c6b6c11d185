package adapter

import (
	"context"

	"telegram-generation-billing/internal/domain/model"
)

// WebhookFields carries the parameters the gateway signs on its result callback.
type WebhookFields struct {
	OutSum    string
	InvID     string
	Signature string
	PaymentID string // shp_payment_id
}

// PaymentGateway is the hex port for payment providers. Every call is remote
// and fallible; callers treat failures as "try again later".
type PaymentGateway interface {
	Name() string

	// CreatePaymentLink returns a payable URL and the gateway correlation id for
	// paymentID. invoiceNo is the store-assigned unique invoice number.
	CreatePaymentLink(ctx context.Context, paymentID string, invoiceNo int64, amount int64, description string) (payURL string, correlationID string, err error)
	// QueryStatus asks the gateway for the state of a payment. Unknown states map to pending.
	QueryStatus(ctx context.Context, correlationID string) (model.PaymentStatus, error)
	// VerifySignature checks an inbound callback.
	VerifySignature(fields WebhookFields) bool
}
