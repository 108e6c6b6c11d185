package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/ports/repository"
	"telegram-generation-billing/internal/infra/logging"
	"telegram-generation-billing/internal/infra/metrics"
)

var _ BalanceUseCase = (*balanceUC)(nil)

type DebitOutcome string

const (
	DebitOutcomeDebited      DebitOutcome = "debited"
	DebitOutcomeInsufficient DebitOutcome = "insufficient"
	DebitOutcomeNotFound     DebitOutcome = "not_found"
)

type DebitResult struct {
	Outcome DebitOutcome `json:"outcome"`
	Balance int64        `json:"balance"`
}

// BalanceUseCase is the only writer of user balances.
type BalanceUseCase interface {
	// Credit adds amount inside the caller's transaction. It is not idempotent;
	// callers guard it with a credited flag or a redemption row.
	Credit(ctx context.Context, tx repository.Tx, userID string, amount int64) (int64, error)
	DebitOne(ctx context.Context, userID string) (DebitResult, error)
	AddReferralBonus(ctx context.Context, userID string, amount int64) (int64, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

type balanceUC struct {
	users repository.UserRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewBalanceUseCase(users repository.UserRepository, tm repository.TransactionManager, logger *zerolog.Logger) *balanceUC {
	l := logger.With().Str("component", "balance_uc").Logger()
	return &balanceUC{users: users, tm: tm, log: &l}
}

func (b *balanceUC) Credit(ctx context.Context, tx repository.Tx, userID string, amount int64) (int64, error) {
	if userID == "" || amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	bal, err := b.users.AddBalance(ctx, tx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("credit user %s: %w", userID, err)
	}
	return bal, nil
}

// DebitOne takes one generation under the user's row lock. Insufficient
// balance and unknown users are outcomes, not errors.
func (b *balanceUC) DebitOne(ctx context.Context, userID string) (DebitResult, error) {
	defer logging.TraceDuration(b.log, "BalanceUC.DebitOne")()

	var res DebitResult
	err := b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		u, err := b.users.FindByID(ctx, tx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			res = DebitResult{Outcome: DebitOutcomeNotFound}
			return nil
		}
		if err != nil {
			return err
		}
		if u.Balance <= 0 {
			res = DebitResult{Outcome: DebitOutcomeInsufficient, Balance: u.Balance}
			return nil
		}
		bal, err := b.users.AddBalance(ctx, tx, userID, -1)
		if err != nil {
			return err
		}
		res = DebitResult{Outcome: DebitOutcomeDebited, Balance: bal}
		return nil
	})
	if err != nil {
		logging.With(ctx, b.log).Error().Err(err).Str("user_id", userID).Msg("debit failed")
		return DebitResult{}, err
	}
	metrics.IncBalanceDebit(string(res.Outcome))
	return res, nil
}

func (b *balanceUC) AddReferralBonus(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	var bal int64
	err := b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		bal, err = b.users.AddReferralBonus(ctx, tx, userID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	metrics.IncReferralBonus()
	return bal, nil
}

func (b *balanceUC) Balance(ctx context.Context, userID string) (int64, error) {
	u, err := b.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return 0, err
	}
	return u.Balance, nil
}
