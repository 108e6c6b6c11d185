package memory

import (
	"context"
	"sort"
	"time"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ s *Store }

func NewPaymentRepo(s *Store) *paymentRepo { return &paymentRepo{s: s} }

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if p == nil || p.ID == "" {
		return domain.ErrInvalidArgument
	}
	return r.s.write(ctx, tx, paymentKey(p.ID), func() (func(), error) {
		if _, ok := r.s.payments[p.ID]; ok {
			return nil, domain.ErrAlreadyExists
		}
		if _, ok := r.s.users[p.UserID]; !ok {
			return nil, domain.ErrOperationFailed
		}
		if p.Credited && p.Status != model.PaymentStatusSuccess {
			return nil, domain.ErrCheckViolation
		}
		if r.s.invoiceTaken(p.ID, p.InvoiceID) {
			return nil, domain.ErrAlreadyExists
		}
		r.s.invoiceSeq++
		p.InvoiceNo = r.s.invoiceSeq
		cp := *p
		r.s.payments[p.ID] = &cp
		return func() { delete(r.s.payments, p.ID) }, nil
	})
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	var out *model.Payment
	err := r.s.readLocked(ctx, tx, paymentKey(id), func() error {
		p, ok := r.s.payments[id]
		if !ok {
			return domain.ErrNotFound
		}
		cp := *p
		out = &cp
		return nil
	})
	return out, err
}

func (r *paymentRepo) SetLink(ctx context.Context, tx repository.Tx, id, link, invoiceID string) error {
	return r.s.write(ctx, tx, paymentKey(id), func() (func(), error) {
		p, ok := r.s.payments[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		if r.s.invoiceTaken(id, invoiceID) {
			return nil, domain.ErrAlreadyExists
		}
		prev := *p
		p.PaymentLink, p.InvoiceID, p.UpdatedAt = link, invoiceID, time.Now().UTC()
		return func() { *p = prev }, nil
	})
}

func (r *paymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus) (bool, error) {
	changed := false
	err := r.s.write(ctx, tx, paymentKey(id), func() (func(), error) {
		p, ok := r.s.payments[id]
		if !ok || p.Status != model.PaymentStatusPending {
			return nil, nil
		}
		prev := *p
		p.Status, p.UpdatedAt = status, time.Now().UTC()
		changed = true
		return func() { *p = prev }, nil
	})
	return changed, err
}

func (r *paymentRepo) MarkCredited(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	changed := false
	err := r.s.write(ctx, tx, paymentKey(id), func() (func(), error) {
		p, ok := r.s.payments[id]
		if !ok || p.Status != model.PaymentStatusSuccess || p.Credited {
			return nil, nil
		}
		prev := *p
		p.Credited, p.UpdatedAt = true, time.Now().UTC()
		changed = true
		return func() { *p = prev }, nil
	})
	return changed, err
}

func (r *paymentRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	if _, err := asTx(tx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	r.s.mu.Lock()
	out := make([]*model.Payment, 0)
	for _, p := range r.s.payments {
		if p.Status == model.PaymentStatusPending {
			cp := *p
			out = append(out, &cp)
		}
	}
	r.s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// invoiceTaken reports whether another payment already holds invoiceID.
// Callers hold s.mu.
func (s *Store) invoiceTaken(id, invoiceID string) bool {
	if invoiceID == "" {
		return false
	}
	for pid, p := range s.payments {
		if pid != id && p.InvoiceID == invoiceID {
			return true
		}
	}
	return false
}
