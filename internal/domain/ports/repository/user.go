package repository

import (
	"context"

	"telegram-generation-billing/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	// FindByID locks the row when called with a transaction.
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	// AddBalance applies balance = balance + delta in a single statement and returns the new balance.
	AddBalance(ctx context.Context, tx Tx, id string, delta int64) (int64, error)
	// AddReferralBonus credits balance and the referral counter together.
	AddReferralBonus(ctx context.Context, tx Tx, id string, amount int64) (int64, error)
}
