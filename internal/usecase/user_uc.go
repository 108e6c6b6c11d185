package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/repository"
	"telegram-generation-billing/internal/infra/logging"
	"telegram-generation-billing/internal/infra/metrics"
)

var _ UserUseCase = (*userUC)(nil)

// UserUseCase registers bot users and resolves them for the transport layers.
type UserUseCase interface {
	// Register is idempotent on telegram id. created is false when the user already existed.
	Register(ctx context.Context, tgID int64, firstName, username string, referrerTgID *int64) (u *model.User, created bool, err error)
	GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// RegistrationPolicy holds the generation grants applied on sign-up.
type RegistrationPolicy struct {
	InitialBalance int64
	ReferralBonus  int64
}

type userUC struct {
	users   repository.UserRepository
	balance BalanceUseCase
	policy  RegistrationPolicy
	log     *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, balance BalanceUseCase, policy RegistrationPolicy, logger *zerolog.Logger) *userUC {
	l := logger.With().Str("component", "user_uc").Logger()
	return &userUC{users: users, balance: balance, policy: policy, log: &l}
}

func (u *userUC) Register(ctx context.Context, tgID int64, firstName, username string, referrerTgID *int64) (*model.User, bool, error) {
	defer logging.TraceDuration(u.log, "UserUC.Register")()

	existing, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, err
	}

	nu, err := model.NewUser(uuid.NewString(), tgID, firstName, username, u.policy.InitialBalance)
	if err != nil {
		return nil, false, err
	}
	if referrerTgID != nil && *referrerTgID != tgID {
		ref := *referrerTgID
		nu.ReferrerTelegramID = &ref
	}

	if err := u.users.Save(ctx, repository.NoTX, nu); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// lost a race with a concurrent /start
			again, ferr := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
			if ferr != nil {
				return nil, false, ferr
			}
			return again, false, nil
		}
		return nil, false, err
	}
	metrics.IncUsersRegistered()
	logging.With(ctx, u.log).Info().Int64("tg_id", tgID).Str("user_id", nu.ID).Msg("user registered")

	if nu.ReferrerTelegramID != nil {
		u.grantReferralBonus(ctx, *nu.ReferrerTelegramID, tgID)
	}
	return nu, true, nil
}

// grantReferralBonus never fails registration; problems are only logged.
func (u *userUC) grantReferralBonus(ctx context.Context, referrerTgID, newTgID int64) {
	log := logging.With(ctx, u.log)
	if u.policy.ReferralBonus <= 0 {
		return
	}
	ref, err := u.users.FindByTelegramID(ctx, repository.NoTX, referrerTgID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Error().Err(err).Int64("referrer_tg_id", referrerTgID).Msg("referrer lookup failed")
		}
		return
	}
	bal, err := u.balance.AddReferralBonus(ctx, ref.ID, u.policy.ReferralBonus)
	if err != nil {
		log.Error().Err(err).Str("referrer_id", ref.ID).Msg("referral bonus failed")
		return
	}
	log.Info().Str("referrer_id", ref.ID).Int64("invited_tg_id", newTgID).Int64("balance", bal).Msg("referral bonus granted")
}

func (u *userUC) GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error) {
	return u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
}

func (u *userUC) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.users.FindByID(ctx, repository.NoTX, id)
}
