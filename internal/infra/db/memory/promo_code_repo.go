package memory

import (
	"context"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/repository"
)

var _ repository.PromoCodeRepository = (*promoCodeRepo)(nil)

type promoCodeRepo struct{ s *Store }

func NewPromoCodeRepo(s *Store) *promoCodeRepo { return &promoCodeRepo{s: s} }

func (r *promoCodeRepo) Save(ctx context.Context, tx repository.Tx, pc *model.PromoCode) error {
	if pc == nil || pc.ID == "" {
		return domain.ErrInvalidArgument
	}
	code := model.NormalizePromoCode(pc.Code)
	return r.s.write(ctx, tx, "promo-code:"+code, func() (func(), error) {
		if _, ok := r.s.promosByCode[code]; ok {
			return nil, domain.ErrAlreadyExists
		}
		if pc.UsageCount < 0 || pc.UsageCount > pc.UsageLimit {
			return nil, domain.ErrCheckViolation
		}
		cp := *pc
		cp.Code = code
		r.s.promos[pc.ID] = &cp
		r.s.promosByCode[code] = pc.ID
		return func() {
			delete(r.s.promos, pc.ID)
			delete(r.s.promosByCode, code)
		}, nil
	})
}

func (r *promoCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoCode, error) {
	code = model.NormalizePromoCode(code)
	r.s.mu.Lock()
	id, ok := r.s.promosByCode[code]
	r.s.mu.Unlock()
	if !ok {
		if _, err := asTx(tx); err != nil {
			return nil, err
		}
		return nil, domain.ErrNotFound
	}

	var out *model.PromoCode
	err := r.s.readLocked(ctx, tx, promoKey(id), func() error {
		pc, ok := r.s.promos[id]
		if !ok {
			return domain.ErrNotFound
		}
		cp := *pc
		out = &cp
		return nil
	})
	return out, err
}

func (r *promoCodeRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string) error {
	return r.s.write(ctx, tx, promoKey(id), func() (func(), error) {
		pc, ok := r.s.promos[id]
		if !ok || pc.UsageCount >= pc.UsageLimit {
			return nil, domain.ErrPromoExhausted
		}
		pc.UsageCount++
		return func() { pc.UsageCount-- }, nil
	})
}

func (r *promoCodeRepo) HasRedemption(ctx context.Context, tx repository.Tx, userID, promoCodeID string) (bool, error) {
	if _, err := asTx(tx); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.redemptions[redemptionKey(userID, promoCodeID)]
	return ok, nil
}

func (r *promoCodeRepo) SaveRedemption(ctx context.Context, tx repository.Tx, red *model.PromoCodeRedemption) error {
	if red == nil || red.ID == "" {
		return domain.ErrInvalidArgument
	}
	key := redemptionKey(red.UserID, red.PromoCodeID)
	return r.s.write(ctx, tx, "redemption:"+key, func() (func(), error) {
		if _, ok := r.s.redemptions[key]; ok {
			return nil, domain.ErrAlreadyExists
		}
		cp := *red
		r.s.redemptions[key] = &cp
		return func() { delete(r.s.redemptions, key) }, nil
	})
}

func redemptionKey(userID, promoCodeID string) string { return userID + "|" + promoCodeID }
