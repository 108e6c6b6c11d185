package repository

import (
	"context"

	"telegram-generation-billing/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	// Save inserts p and assigns p.InvoiceNo.
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	// FindByID locks the row when called with a transaction.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	// SetLink stores the gateway link. An invoiceID already held by another
	// payment yields ErrAlreadyExists.
	SetLink(ctx context.Context, tx Tx, id, link, invoiceID string) error
	// UpdateStatusIfPending moves a pending payment to status and reports whether a row changed.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.PaymentStatus) (bool, error)
	// MarkCredited flips credited false->true on a successful payment and reports whether a row changed.
	MarkCredited(ctx context.Context, tx Tx, id string) (bool, error)
	ListPending(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error)
}
