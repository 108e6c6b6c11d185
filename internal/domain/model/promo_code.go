package model

import (
	"strings"
	"time"

	"telegram-generation-billing/internal/domain"
)

// PromoCode grants Generations to each of at most UsageLimit distinct users.
type PromoCode struct {
	ID          string
	Code        string // stored upper-cased; lookups are case-insensitive
	Generations int64
	UsageLimit  int
	UsageCount  int
	CreatedAt   time.Time
}

func NewPromoCode(id, code string, generations int64, usageLimit int) (*PromoCode, error) {
	code = NormalizePromoCode(code)
	if id == "" || code == "" || generations <= 0 || usageLimit <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &PromoCode{
		ID:          id,
		Code:        code,
		Generations: generations,
		UsageLimit:  usageLimit,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (p *PromoCode) IsExhausted() bool { return p.UsageCount >= p.UsageLimit }

func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PromoCodeRedemption exists only for successful redemptions; (UserID, PromoCodeID) is unique.
type PromoCodeRedemption struct {
	ID          string
	UserID      string
	PromoCodeID string
	CreatedAt   time.Time
}
