package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/ports/adapter"
	"telegram-generation-billing/internal/infra/logging"
	"telegram-generation-billing/internal/infra/metrics"
)

// rateLimitedPromoUC caps activation attempts per user so codes cannot be
// brute-forced. Limiter failures let the attempt through.
type rateLimitedPromoUC struct {
	PromoUseCase
	limiter adapter.RateLimiter
	limit   int
	window  time.Duration
	log     *zerolog.Logger
}

func NewRateLimitedPromoUseCase(inner PromoUseCase, limiter adapter.RateLimiter, limit int, window time.Duration, logger *zerolog.Logger) PromoUseCase {
	if limiter == nil || limit <= 0 {
		return inner
	}
	return &rateLimitedPromoUC{PromoUseCase: inner, limiter: limiter, limit: limit, window: window, log: logger}
}

func (p *rateLimitedPromoUC) Activate(ctx context.Context, userID, code string) (PromoResult, error) {
	ok, err := p.limiter.Allow(ctx, "rate_limit:"+userID+":promo", p.limit, p.window)
	if err != nil {
		logging.With(ctx, p.log).Warn().Err(err).Msg("rate limiter unavailable; allowing")
	} else if !ok {
		metrics.IncRateLimited("promo")
		return PromoResult{Outcome: PromoOutcomeError}, domain.ErrRateLimited
	}
	return p.PromoUseCase.Activate(ctx, userID, code)
}

var _ PromoUseCase = (*rateLimitedPromoUC)(nil)
