package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/adapter"
	"telegram-generation-billing/internal/domain/ports/repository"
	"telegram-generation-billing/internal/infra/logging"
	"telegram-generation-billing/internal/infra/metrics"
)

var _ PromoUseCase = (*promoUC)(nil)

type PromoOutcome string

const (
	PromoOutcomeSuccess     PromoOutcome = "success"
	PromoOutcomeInvalid     PromoOutcome = "invalid"
	PromoOutcomeExhausted   PromoOutcome = "exhausted"
	PromoOutcomeAlreadyUsed PromoOutcome = "already_used"
	PromoOutcomeError       PromoOutcome = "error"
)

type PromoResult struct {
	Outcome PromoOutcome `json:"outcome"`
	Amount  int64        `json:"amount,omitempty"`
	Balance int64        `json:"balance,omitempty"`
}

type PromoUseCase interface {
	Activate(ctx context.Context, userID, code string) (PromoResult, error)
	// Create issues a random code for admins.
	Create(ctx context.Context, generations int64, usageLimit int) (*model.PromoCode, error)
}

const maxPromoCodeAttempts = 10

// Rejections discovered after a write must roll the transaction back.
var (
	errPromoRaceExhausted = errors.New("promo exhausted under lock")
	errPromoRaceUsed      = errors.New("promo redeemed concurrently")
)

type promoUC struct {
	promos  repository.PromoCodeRepository
	balance BalanceUseCase
	tm      repository.TransactionManager
	events  adapter.EventPublisher
	log     *zerolog.Logger
}

func NewPromoUseCase(promos repository.PromoCodeRepository, balance BalanceUseCase, tm repository.TransactionManager, events adapter.EventPublisher, logger *zerolog.Logger) *promoUC {
	l := logger.With().Str("component", "promo_uc").Logger()
	return &promoUC{promos: promos, balance: balance, tm: tm, events: events, log: &l}
}

func (p *promoUC) Activate(ctx context.Context, userID, code string) (PromoResult, error) {
	defer logging.TraceDuration(p.log, "PromoUC.Activate")()
	log := logging.With(ctx, p.log)

	code = model.NormalizePromoCode(code)
	if code == "" {
		metrics.IncPromoActivation(string(PromoOutcomeInvalid))
		return PromoResult{Outcome: PromoOutcomeInvalid}, nil
	}

	var (
		res   PromoResult
		promo *model.PromoCode
	)
	err := p.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		pc, err := p.promos.FindByCode(ctx, tx, code)
		if errors.Is(err, domain.ErrNotFound) {
			res = PromoResult{Outcome: PromoOutcomeInvalid}
			return nil
		}
		if err != nil {
			return err
		}
		if pc.IsExhausted() {
			res = PromoResult{Outcome: PromoOutcomeExhausted}
			return nil
		}
		used, err := p.promos.HasRedemption(ctx, tx, userID, pc.ID)
		if err != nil {
			return err
		}
		if used {
			res = PromoResult{Outcome: PromoOutcomeAlreadyUsed}
			return nil
		}

		if err := p.promos.IncrementUsage(ctx, tx, pc.ID); err != nil {
			if errors.Is(err, domain.ErrPromoExhausted) {
				return errPromoRaceExhausted
			}
			return err
		}
		bal, err := p.balance.Credit(ctx, tx, userID, pc.Generations)
		if err != nil {
			return err
		}
		red := &model.PromoCodeRedemption{
			ID:          ulid.Make().String(),
			UserID:      userID,
			PromoCodeID: pc.ID,
			CreatedAt:   time.Now().UTC(),
		}
		if err := p.promos.SaveRedemption(ctx, tx, red); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return errPromoRaceUsed
			}
			return err
		}
		res = PromoResult{Outcome: PromoOutcomeSuccess, Amount: pc.Generations, Balance: bal}
		promo = pc
		return nil
	})

	switch {
	case errors.Is(err, errPromoRaceExhausted):
		res, err = PromoResult{Outcome: PromoOutcomeExhausted}, nil
	case errors.Is(err, errPromoRaceUsed):
		res, err = PromoResult{Outcome: PromoOutcomeAlreadyUsed}, nil
	case err != nil:
		log.Error().Err(err).Str("user_id", userID).Str("code", code).Msg("promo activation failed")
		metrics.IncPromoActivation(string(PromoOutcomeError))
		return PromoResult{Outcome: PromoOutcomeError}, err
	}

	metrics.IncPromoActivation(string(res.Outcome))
	if res.Outcome == PromoOutcomeSuccess {
		log.Info().Str("user_id", userID).Str("code", code).Int64("amount", res.Amount).Msg("promo redeemed")
		publishEvent(ctx, p.events, p.log, newEvent(adapter.EventPromoRedeemed, userID, map[string]any{
			"user_id":       userID,
			"promo_code_id": promo.ID,
			"code":          promo.Code,
			"generations":   promo.Generations,
			"balance":       res.Balance,
		}))
	}
	return res, nil
}

func (p *promoUC) Create(ctx context.Context, generations int64, usageLimit int) (*model.PromoCode, error) {
	if generations <= 0 || usageLimit <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	for attempt := 0; attempt < maxPromoCodeAttempts; attempt++ {
		code, err := generatePromoCode()
		if err != nil {
			return nil, err
		}
		pc, err := model.NewPromoCode(uuid.NewString(), code, generations, usageLimit)
		if err != nil {
			return nil, err
		}
		err = p.promos.Save(ctx, repository.NoTX, pc)
		if errors.Is(err, domain.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		logging.With(ctx, p.log).Info().Str("code", pc.Code).Int64("generations", generations).Int("usage_limit", usageLimit).Msg("promo code created")
		return pc, nil
	}
	return nil, fmt.Errorf("%w: no free promo code after %d attempts", domain.ErrAlreadyExists, maxPromoCodeAttempts)
}
