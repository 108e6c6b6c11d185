package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/adapter"
	"telegram-generation-billing/internal/domain/ports/repository"
	"telegram-generation-billing/internal/infra/logging"
	"telegram-generation-billing/internal/infra/metrics"
)

var _ PaymentUseCase = (*paymentUC)(nil)

// Trigger names the source that asked for a reconciliation.
type Trigger string

const (
	TriggerWebhook Trigger = "webhook"
	TriggerPoll    Trigger = "poll"
	TriggerManual  Trigger = "manual"
)

type CheckOutcome string

const (
	CheckOutcomeCredited CheckOutcome = "credited"
	CheckOutcomePending  CheckOutcome = "pending"
	CheckOutcomeFailed   CheckOutcome = "failed"
)

// CheckResult is what a user sees after pressing "check payment".
type CheckResult struct {
	Outcome CheckOutcome   `json:"outcome"`
	Payment *model.Payment `json:"-"`
	Balance int64          `json:"balance"`
}

type PaymentUseCase interface {
	// Initiate creates a pending payment for the tier and asks the gateway for a link.
	Initiate(ctx context.Context, userID string, generations int64) (*model.Payment, error)
	// Reconcile converges a payment with the gateway and credits it at most once.
	// known carries an authoritative status (webhook); nil means "find out".
	Reconcile(ctx context.Context, paymentID string, trigger Trigger, known *model.PaymentStatus) (*model.Payment, error)
	// HandleWebhook validates a gateway callback and returns the acknowledgement body.
	HandleWebhook(ctx context.Context, f adapter.WebhookFields) (string, error)
	// CheckPayment is the manual trigger on behalf of the payment's owner.
	CheckPayment(ctx context.Context, paymentID string, telegramID int64) (*CheckResult, error)
	ListPending(ctx context.Context, limit int) ([]*model.Payment, error)
}

// PaymentSettings are the knobs of the reconciliation engine.
type PaymentSettings struct {
	PendingTTL  time.Duration
	Pricing     []model.PricingTier
	ManualLimit int
	ManualEvery time.Duration
}

type paymentUC struct {
	payments repository.PaymentRepository
	users    repository.UserRepository
	balance  BalanceUseCase
	tm       repository.TransactionManager
	gateway  adapter.PaymentGateway
	notifier adapter.TelegramBotAdapter
	events   adapter.EventPublisher
	limiter  adapter.RateLimiter
	settings PaymentSettings
	log      *zerolog.Logger
	now      func() time.Time
}

// NewPaymentUseCase wires the engine. notifier, events and limiter may be nil.
func NewPaymentUseCase(
	payments repository.PaymentRepository,
	users repository.UserRepository,
	balance BalanceUseCase,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	notifier adapter.TelegramBotAdapter,
	events adapter.EventPublisher,
	limiter adapter.RateLimiter,
	settings PaymentSettings,
	logger *zerolog.Logger,
) *paymentUC {
	if settings.PendingTTL <= 0 {
		settings.PendingTTL = time.Hour
	}
	l := logger.With().Str("component", "payment_uc").Logger()
	return &paymentUC{
		payments: payments,
		users:    users,
		balance:  balance,
		tm:       tm,
		gateway:  gateway,
		notifier: notifier,
		events:   events,
		limiter:  limiter,
		settings: settings,
		log:      &l,
		now:      time.Now,
	}
}

func (u *paymentUC) Initiate(ctx context.Context, userID string, generations int64) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Initiate")()
	log := logging.With(ctx, u.log)

	var tier *model.PricingTier
	for i := range u.settings.Pricing {
		if u.settings.Pricing[i].Generations == generations {
			tier = &u.settings.Pricing[i]
			break
		}
	}
	if tier == nil {
		return nil, fmt.Errorf("%w: no pricing tier for %d generations", domain.ErrInvalidArgument, generations)
	}

	p, err := model.NewPayment(uuid.NewString(), userID, u.gateway.Name(), *tier)
	if err != nil {
		return nil, err
	}
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(model.PaymentStatusPending))

	desc := fmt.Sprintf("%d generations", tier.Generations)
	link, corrID, err := u.gateway.CreatePaymentLink(ctx, p.ID, p.InvoiceNo, p.Amount, desc)
	if err != nil {
		// the payment stays pending and ages out
		log.Error().Err(err).Str("payment_id", p.ID).Msg("gateway link creation failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	if err := u.payments.SetLink(ctx, repository.NoTX, p.ID, link, corrID); err != nil {
		return nil, err
	}
	p.PaymentLink, p.InvoiceID = link, corrID

	log.Info().Str("payment_id", p.ID).Str("invoice_id", corrID).Int64("generations", p.Generations).
		Str("amount", model.FormatAmount(p.Amount)).Msg("payment initiated")
	return p, nil
}

// reconcileOutcome is what one locked pass over a payment did.
type reconcileOutcome struct {
	payment      *model.Payment
	transitioned bool
	credited     bool
	balance      int64
}

func (u *paymentUC) Reconcile(ctx context.Context, paymentID string, trigger Trigger, known *model.PaymentStatus) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Reconcile")()
	log := logging.With(logging.WithPaymentID(ctx, paymentID), u.log).With().Str("trigger", string(trigger)).Logger()

	// Unlocked pre-read: duplicates never reach the gateway.
	snap, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		metrics.IncReconcile(string(trigger), "error")
		return nil, err
	}
	if snap.IsSettled() {
		u.reportLateConfirmation(&log, snap, known)
		metrics.IncReconcile(string(trigger), "settled")
		return snap, nil
	}

	// No lock is held while the gateway is consulted.
	target, err := u.resolveStatus(ctx, snap, trigger, known)
	if err != nil {
		log.Warn().Err(err).Msg("gateway status query failed; deferring to next trigger")
		metrics.IncReconcile(string(trigger), "gateway_error")
		return snap, nil
	}

	out, err := u.apply(ctx, &log, paymentID, target, known)
	if err != nil {
		log.Error().Err(err).Msg("reconcile transaction rolled back")
		metrics.IncReconcile(string(trigger), "error")
		return nil, err
	}

	u.afterCommit(ctx, &log, trigger, out)
	return out.payment, nil
}

// resolveStatus decides the target status before any lock is taken.
func (u *paymentUC) resolveStatus(ctx context.Context, p *model.Payment, trigger Trigger, known *model.PaymentStatus) (model.PaymentStatus, error) {
	if known != nil {
		return *known, nil
	}
	switch p.Status {
	case model.PaymentStatusSuccess:
		// confirmed but not yet credited: resume the credit
		return model.PaymentStatusSuccess, nil
	case model.PaymentStatusFailed:
		return model.PaymentStatusFailed, nil
	case model.PaymentStatusPending:
	}

	if trigger == TriggerPoll && p.Age(u.now()) > u.settings.PendingTTL {
		return model.PaymentStatusFailed, nil
	}
	if p.InvoiceID == "" {
		return model.PaymentStatusPending, nil
	}

	st, err := u.gateway.QueryStatus(ctx, p.InvoiceID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	return st, nil
}

// apply is the locked part of a reconciliation.
func (u *paymentUC) apply(ctx context.Context, log *zerolog.Logger, paymentID string, target model.PaymentStatus, known *model.PaymentStatus) (*reconcileOutcome, error) {
	out := &reconcileOutcome{}
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		*out = reconcileOutcome{}

		p, err := u.payments.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		// Must stay the first check under the lock.
		if p.IsSettled() {
			u.reportLateConfirmation(log, p, known)
			out.payment = p
			return nil
		}

		next, terr := model.NextStatus(p.Status, target)
		if terr != nil {
			log.Error().Err(terr).Bool("invariant", true).Str("stored", string(p.Status)).
				Str("reported", string(target)).Msg("backward status transition refused")
			metrics.IncInvariantViolation("backward_transition")
			return fmt.Errorf("%w: %w", domain.ErrInvariantViolation, terr)
		}

		if next != p.Status {
			changed, err := u.payments.UpdateStatusIfPending(ctx, tx, p.ID, next)
			if err != nil {
				return err
			}
			if !changed {
				return fmt.Errorf("%w: payment %s left pending while locked", domain.ErrInvariantViolation, p.ID)
			}
			p.Status = next
			out.transitioned = true
		}

		if p.NeedsCredit() {
			bal, err := u.balance.Credit(ctx, tx, p.UserID, p.Generations)
			if err != nil {
				return err
			}
			ok, err := u.payments.MarkCredited(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			if !ok {
				metrics.IncInvariantViolation("double_credit")
				return fmt.Errorf("%w: payment %s already credited", domain.ErrInvariantViolation, p.ID)
			}
			p.Credited = true
			out.credited = true
			out.balance = bal
		}
		out.payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (u *paymentUC) afterCommit(ctx context.Context, log *zerolog.Logger, trigger Trigger, out *reconcileOutcome) {
	p := out.payment
	result := "pending"
	switch {
	case out.credited:
		result = "credited"
	case p.IsSettled() && !out.transitioned:
		result = "settled"
	case p.Status == model.PaymentStatusFailed:
		result = "failed"
	}
	metrics.IncReconcile(string(trigger), result)

	if out.transitioned {
		metrics.IncPayment(string(p.Status))
		log.Info().Str("status", string(p.Status)).Msg("payment status changed")
	}

	switch {
	case out.credited:
		metrics.AddCreditedGenerations(p.Generations)
		metrics.AddPaymentRevenue(p.Currency, p.Amount)
		log.Info().Str("user_id", p.UserID).Int64("generations", p.Generations).Int64("balance", out.balance).Msg("payment credited")
		publishEvent(ctx, u.events, log, newEvent(adapter.EventPaymentCredited, p.UserID, map[string]any{
			"payment_id":  p.ID,
			"user_id":     p.UserID,
			"generations": p.Generations,
			"amount":      p.Amount,
			"currency":    p.Currency,
			"balance":     out.balance,
			"trigger":     string(trigger),
		}))
		// the manual trigger answers in place
		if trigger != TriggerManual {
			u.notifyCredited(ctx, log, p.UserID, p.Generations, out.balance)
		}
	case out.transitioned && p.Status == model.PaymentStatusFailed:
		publishEvent(ctx, u.events, log, newEvent(adapter.EventPaymentFailed, p.UserID, map[string]any{
			"payment_id": p.ID,
			"user_id":    p.UserID,
			"trigger":    string(trigger),
		}))
	}
}

func (u *paymentUC) notifyCredited(ctx context.Context, log *zerolog.Logger, userID string, generations, balance int64) {
	if u.notifier == nil {
		return
	}
	usr, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		log.Warn().Err(err).Msg("notify: user lookup failed")
		metrics.PaymentDMTotal.WithLabelValues("error").Inc()
		return
	}
	if err := u.notifier.NotifyPaymentCredited(ctx, usr.TelegramID, generations, balance); err != nil {
		log.Warn().Err(err).Int64("tg_id", usr.TelegramID).Msg("notify: send failed")
		metrics.PaymentDMTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.PaymentDMTotal.WithLabelValues("sent").Inc()
}

// reportLateConfirmation flags gateway success arriving for a payment that
// already failed. Failed stays terminal; support settles these by hand.
func (u *paymentUC) reportLateConfirmation(log *zerolog.Logger, p *model.Payment, known *model.PaymentStatus) {
	if known == nil || *known != model.PaymentStatusSuccess || p.Status != model.PaymentStatusFailed {
		return
	}
	log.Error().Bool("invariant", true).Str("user_id", p.UserID).Int64("generations", p.Generations).
		Msg("late confirmation for failed payment; manual resolution required")
	metrics.IncInvariantViolation("late_confirmation")
}

func (u *paymentUC) HandleWebhook(ctx context.Context, f adapter.WebhookFields) (string, error) {
	f.OutSum, f.InvID = strings.TrimSpace(f.OutSum), strings.TrimSpace(f.InvID)
	f.Signature, f.PaymentID = strings.TrimSpace(f.Signature), strings.TrimSpace(f.PaymentID)
	if f.OutSum == "" || f.InvID == "" || f.Signature == "" || f.PaymentID == "" {
		return "", fmt.Errorf("%w: missing webhook field", domain.ErrInvalidArgument)
	}
	if _, err := uuid.Parse(f.PaymentID); err != nil {
		return "", fmt.Errorf("%w: payment id %q", domain.ErrInvalidArgument, f.PaymentID)
	}
	if !u.gateway.VerifySignature(f) {
		return "", domain.ErrInvalidSignature
	}

	p, err := u.payments.FindByID(ctx, repository.NoTX, f.PaymentID)
	if err != nil {
		return "", err
	}
	paid, err := decimal.NewFromString(f.OutSum)
	if err != nil {
		return "", fmt.Errorf("%w: OutSum %q", domain.ErrInvalidArgument, f.OutSum)
	}
	if !paid.Equal(decimal.New(p.Amount, -2)) {
		return "", fmt.Errorf("%w: got %s, want %s", domain.ErrAmountMismatch, paid.StringFixed(2), model.FormatAmount(p.Amount))
	}
	if p.InvoiceID != "" && p.InvoiceID != f.InvID {
		logging.With(ctx, u.log).Warn().Str("payment_id", p.ID).Str("stored_inv_id", p.InvoiceID).
			Str("inv_id", f.InvID).Msg("webhook InvId differs from stored correlation id")
	}

	known := model.PaymentStatusSuccess
	if _, err := u.Reconcile(ctx, p.ID, TriggerWebhook, &known); err != nil {
		return "", err
	}
	return "OK" + f.InvID, nil
}

func (u *paymentUC) CheckPayment(ctx context.Context, paymentID string, telegramID int64) (*CheckResult, error) {
	if _, err := uuid.Parse(paymentID); err != nil {
		return nil, fmt.Errorf("%w: payment id %q", domain.ErrInvalidArgument, paymentID)
	}
	if u.limiter != nil && u.settings.ManualLimit > 0 {
		ok, err := u.limiter.Allow(ctx, fmt.Sprintf("rate_limit:%d:check_payment", telegramID), u.settings.ManualLimit, u.settings.ManualEvery)
		if err != nil {
			logging.With(ctx, u.log).Warn().Err(err).Msg("rate limiter unavailable; allowing")
		} else if !ok {
			metrics.IncRateLimited("manual_check")
			return nil, domain.ErrRateLimited
		}
	}

	owner, err := u.users.FindByTelegramID(ctx, repository.NoTX, telegramID)
	if err != nil {
		return nil, err
	}
	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != owner.ID {
		return nil, domain.ErrForbidden
	}

	snap, err := u.Reconcile(ctx, paymentID, TriggerManual, nil)
	if err != nil {
		return nil, err
	}
	bal, err := u.balance.Balance(ctx, owner.ID)
	if err != nil {
		return nil, err
	}

	res := &CheckResult{Outcome: CheckOutcomePending, Payment: snap, Balance: bal}
	switch snap.Status {
	case model.PaymentStatusSuccess:
		if snap.Credited {
			res.Outcome = CheckOutcomeCredited
		}
	case model.PaymentStatusFailed:
		res.Outcome = CheckOutcomeFailed
	case model.PaymentStatusPending:
	}
	return res, nil
}

func (u *paymentUC) ListPending(ctx context.Context, limit int) ([]*model.Payment, error) {
	return u.payments.ListPending(ctx, repository.NoTX, limit)
}

// IsValidationError reports errors that reject input before any mutation.
func IsValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidArgument) ||
		errors.Is(err, domain.ErrInvalidSignature) ||
		errors.Is(err, domain.ErrAmountMismatch)
}
