package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

const userColumns = `id, telegram_id, first_name, username, balance, referral_balance, referrer_telegram_id, is_admin, created_at`

// Save inserts a new user. A second user with the same telegram id yields domain.ErrAlreadyExists.
func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `INSERT INTO users (` + userColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q,
		u.ID, u.TelegramID, u.FirstName, u.Username, u.Balance, u.ReferralBalance,
		u.ReferrerTelegramID, u.IsAdmin, u.CreatedAt)
	return mapError(err)
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	q := forUpdate(`SELECT `+userColumns+` FROM users WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, mapError(err)
	}
	return scanUser(row)
}

func (r *userRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE telegram_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, tgID)
	if err != nil {
		return nil, mapError(err)
	}
	return scanUser(row)
}

// AddBalance is a single read-modify-write statement; concurrent credits
// serialize on the row and none is lost. A result below zero trips the
// users_balance_not_negative check and yields domain.ErrCheckViolation.
func (r *userRepo) AddBalance(ctx context.Context, tx repository.Tx, id string, delta int64) (int64, error) {
	const q = `UPDATE users SET balance = balance + $2 WHERE id=$1 RETURNING balance;`
	return r.returningBalance(ctx, tx, q, id, delta)
}

func (r *userRepo) AddReferralBonus(ctx context.Context, tx repository.Tx, id string, amount int64) (int64, error) {
	const q = `
UPDATE users
   SET balance = balance + $2,
       referral_balance = referral_balance + $2
 WHERE id=$1
RETURNING balance;`
	return r.returningBalance(ctx, tx, q, id, amount)
}

func (r *userRepo) returningBalance(ctx context.Context, tx repository.Tx, q, id string, n int64) (int64, error) {
	row, err := pickRow(ctx, r.pool, tx, q, id, n)
	if err != nil {
		return 0, mapError(err)
	}
	var balance int64
	if err := row.Scan(&balance); err != nil {
		return 0, mapError(err)
	}
	return balance, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.FirstName, &u.Username, &u.Balance, &u.ReferralBalance,
		&u.ReferrerTelegramID, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, mapScanError(err)
	}
	return &u, nil
}
