package repository

import (
	"context"

	"telegram-generation-billing/internal/domain/model"
)

// PromoCodeRepository stores promo codes and their redemptions.
type PromoCodeRepository interface {
	// Save inserts a new code; a duplicate code yields domain.ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, pc *model.PromoCode) error
	// FindByCode looks the code up case-insensitively and locks the row when called with a transaction.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.PromoCode, error)
	// IncrementUsage bumps usage_count; it yields domain.ErrPromoExhausted when the limit is reached.
	IncrementUsage(ctx context.Context, tx Tx, id string) error
	HasRedemption(ctx context.Context, tx Tx, userID, promoCodeID string) (bool, error)
	// SaveRedemption yields domain.ErrAlreadyExists when the (user, code) pair exists.
	SaveRedemption(ctx context.Context, tx Tx, r *model.PromoCodeRedemption) error
}
