package memory

import (
	"context"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct{ s *Store }

func NewUserRepo(s *Store) *userRepo { return &userRepo{s: s} }

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if u == nil || u.ID == "" {
		return domain.ErrInvalidArgument
	}
	return r.s.write(ctx, tx, userKey(u.ID), func() (func(), error) {
		if _, ok := r.s.users[u.ID]; ok {
			return nil, domain.ErrAlreadyExists
		}
		if _, ok := r.s.usersByTg[u.TelegramID]; ok {
			return nil, domain.ErrAlreadyExists
		}
		if u.Balance < 0 || u.ReferralBalance < 0 {
			return nil, domain.ErrCheckViolation
		}
		cp := *u
		r.s.users[u.ID] = &cp
		r.s.usersByTg[u.TelegramID] = u.ID
		return func() {
			delete(r.s.users, u.ID)
			delete(r.s.usersByTg, u.TelegramID)
		}, nil
	})
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	var out *model.User
	err := r.s.readLocked(ctx, tx, userKey(id), func() error {
		u, ok := r.s.users[id]
		if !ok {
			return domain.ErrNotFound
		}
		cp := *u
		out = &cp
		return nil
	})
	return out, err
}

func (r *userRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if _, err := asTx(tx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.usersByTg[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r.s.users[id]
	return &cp, nil
}

func (r *userRepo) AddBalance(ctx context.Context, tx repository.Tx, id string, delta int64) (int64, error) {
	return r.add(ctx, tx, id, delta, 0)
}

func (r *userRepo) AddReferralBonus(ctx context.Context, tx repository.Tx, id string, amount int64) (int64, error) {
	return r.add(ctx, tx, id, amount, amount)
}

func (r *userRepo) add(ctx context.Context, tx repository.Tx, id string, delta, referral int64) (int64, error) {
	var balance int64
	err := r.s.write(ctx, tx, userKey(id), func() (func(), error) {
		u, ok := r.s.users[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		if u.Balance+delta < 0 || u.ReferralBalance+referral < 0 {
			return nil, domain.ErrCheckViolation
		}
		u.Balance += delta
		u.ReferralBalance += referral
		balance = u.Balance
		return func() {
			u.Balance -= delta
			u.ReferralBalance -= referral
		}, nil
	})
	return balance, err
}
