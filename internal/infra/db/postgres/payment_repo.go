package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const (
	paymentInsertColumns = `id, user_id, status, provider, amount, currency, generations, credited, invoice_id, payment_link, created_at, updated_at`
	paymentColumns       = `id, user_id, status, provider, amount, currency, generations, credited, invoice_no, invoice_id, payment_link, created_at, updated_at`
)

// Save inserts p; invoice_no comes from the table's sequence.
func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentInsertColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),NULLIF($10,''),$11,$12)
RETURNING invoice_no;`

	row, err := pickRow(ctx, r.pool, tx, q,
		p.ID, p.UserID, string(p.Status), p.Provider, p.Amount, p.Currency, p.Generations,
		p.Credited, p.InvoiceID, p.PaymentLink, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if err := row.Scan(&p.InvoiceNo); err != nil {
		return mapError(err)
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := forUpdate(`SELECT `+paymentColumns+` FROM payments WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, mapError(err)
	}
	return scanPayment(row)
}

func (r *paymentRepo) SetLink(ctx context.Context, tx repository.Tx, id, link, invoiceID string) error {
	const q = `UPDATE payments SET payment_link=$2, invoice_id=$3, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, link, invoiceID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatusIfPending only touches rows still pending, so a terminal status
// is never overwritten even when the caller's view is stale.
func (r *paymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus) (bool, error) {
	const q = `UPDATE payments SET status=$2, updated_at=NOW() WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status))
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) MarkCredited(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE payments SET credited=TRUE, updated_at=NOW() WHERE id=$1 AND status='success' AND NOT credited;`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE status='pending' ORDER BY created_at ASC LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p         model.Payment
		status    string
		invoiceID *string
		link      *string
	)
	if err := row.Scan(&p.ID, &p.UserID, &status, &p.Provider, &p.Amount, &p.Currency, &p.Generations,
		&p.Credited, &p.InvoiceNo, &invoiceID, &link, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapScanError(err)
	}
	st, err := model.ParsePaymentStatus(status)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	p.Status = st
	if invoiceID != nil {
		p.InvoiceID = *invoiceID
	}
	if link != nil {
		p.PaymentLink = *link
	}
	return &p, nil
}
