package payment

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory gateway for -dev runs and tests.
// Every link it issues reports success on the first status query.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	intents map[string]int64 // correlation id -> amount
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		intents: make(map[string]int64),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) CreatePaymentLink(ctx context.Context, paymentID string, invoiceNo int64, amount int64, description string) (string, string, error) {
	if invoiceNo <= 0 {
		return "", "", fmt.Errorf("noop: invalid invoice number %d", invoiceNo)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	corr := strconv.FormatInt(invoiceNo, 10)
	g.intents[corr] = amount
	return "https://example.test/pay/" + paymentID + "?sum=" + model.FormatAmount(amount), corr, nil
}

func (g *NoopPaymentGateway) QueryStatus(ctx context.Context, correlationID string) (model.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.intents[correlationID]; !ok {
		return model.PaymentStatusPending, nil
	}
	return model.PaymentStatusSuccess, nil
}

// Signature is what VerifySignature expects for a payment.
func (g *NoopPaymentGateway) Signature(paymentID string) string { return "noop-" + paymentID }

func (g *NoopPaymentGateway) VerifySignature(f adapter.WebhookFields) bool {
	return f.Signature != "" && f.Signature == g.Signature(f.PaymentID)
}
