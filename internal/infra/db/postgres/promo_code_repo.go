package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/repository"
)

var _ repository.PromoCodeRepository = (*promoCodeRepo)(nil)

type promoCodeRepo struct{ pool *pgxpool.Pool }

func NewPromoCodeRepo(pool *pgxpool.Pool) *promoCodeRepo {
	return &promoCodeRepo{pool: pool}
}

const promoColumns = `id, code, generations, usage_limit, usage_count, created_at`

func (r *promoCodeRepo) Save(ctx context.Context, tx repository.Tx, pc *model.PromoCode) error {
	const q = `INSERT INTO promo_codes (` + promoColumns + `) VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := execSQL(ctx, r.pool, tx, q,
		pc.ID, model.NormalizePromoCode(pc.Code), pc.Generations, pc.UsageLimit, pc.UsageCount, pc.CreatedAt)
	return mapError(err)
}

func (r *promoCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoCode, error) {
	q := forUpdate(`SELECT `+promoColumns+` FROM promo_codes WHERE code=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, model.NormalizePromoCode(code))
	if err != nil {
		return nil, mapError(err)
	}
	var pc model.PromoCode
	if err := row.Scan(&pc.ID, &pc.Code, &pc.Generations, &pc.UsageLimit, &pc.UsageCount, &pc.CreatedAt); err != nil {
		return nil, mapScanError(err)
	}
	return &pc, nil
}

func (r *promoCodeRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE promo_codes SET usage_count = usage_count + 1 WHERE id=$1 AND usage_count < usage_limit;`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPromoExhausted
	}
	return nil
}

func (r *promoCodeRepo) HasRedemption(ctx context.Context, tx repository.Tx, userID, promoCodeID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM promo_code_redemptions WHERE user_id=$1 AND promo_code_id=$2);`
	row, err := pickRow(ctx, r.pool, tx, q, userID, promoCodeID)
	if err != nil {
		return false, mapError(err)
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}

func (r *promoCodeRepo) SaveRedemption(ctx context.Context, tx repository.Tx, red *model.PromoCodeRedemption) error {
	const q = `INSERT INTO promo_code_redemptions (id, user_id, promo_code_id, created_at) VALUES ($1,$2,$3,$4);`
	_, err := execSQL(ctx, r.pool, tx, q, red.ID, red.UserID, red.PromoCodeID, red.CreatedAt)
	return mapError(err)
}
