package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/infra/metrics"
	"telegram-generation-billing/internal/infra/redis"
	"telegram-generation-billing/internal/infra/worker"
	"telegram-generation-billing/internal/usecase"
)

const pollLockKey = "lock:payment_poll"

// Lease keeps replicas from polling the same batch concurrently. Optional.
type Lease interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// PaymentReconciler walks pending payments on a fixed interval and reconciles
// each one with the poll trigger. Ageing out to failed happens there too.
type PaymentReconciler struct {
	uc       usecase.PaymentUseCase
	interval time.Duration
	batch    int
	lease    Lease
	workers  int
	log      *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.PaymentUseCase, interval time.Duration, batch int, lease Lease, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = 40 * time.Second
	}
	if batch <= 0 {
		batch = 200
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{uc: uc, interval: interval, batch: batch, lease: lease, workers: 1, log: &l}
}

// WithWorkers sets how many payments of one pass are reconciled concurrently.
func (w *PaymentReconciler) WithWorkers(n int) *PaymentReconciler {
	if n > 0 {
		w.workers = n
	}
	return w
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Int("batch", w.batch).Msg("Starting payment reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one poll pass. A failing payment is logged and skipped.
func (w *PaymentReconciler) Tick(ctx context.Context) (processed, failed int) {
	start := time.Now()
	defer func() { metrics.PaymentPollDuration.Observe(time.Since(start).Seconds()) }()

	if w.lease != nil {
		token, err := w.lease.TryLock(ctx, pollLockKey, w.interval)
		switch {
		case err == nil:
			defer func() {
				if err := w.lease.Unlock(context.WithoutCancel(ctx), pollLockKey, token); err != nil {
					w.log.Warn().Err(err).Msg("poll lease unlock failed")
				}
			}()
		case errors.Is(err, redis.ErrLockHeld), ctx.Err() != nil:
			w.log.Debug().Msg("poll lease held by another replica")
			return 0, 0
		default:
			// row locks keep concurrent pollers safe, so an unreachable redis does not stop polling
			w.log.Warn().Err(err).Msg("poll lease unavailable, polling anyway")
		}
	}

	pending, err := w.uc.ListPending(ctx, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("list pending payments failed")
		return 0, 0
	}

	pool := worker.NewPool(w.workers, w.log)
	pool.Start(ctx)
	for _, p := range pending {
		p := p
		err := pool.Submit(ctx, func(ctx context.Context) error {
			res, err := w.uc.Reconcile(ctx, p.ID, usecase.TriggerPoll, nil)
			if err != nil {
				w.log.Error().Err(err).Str("payment_id", p.ID).Msg("poll reconcile failed")
				return err
			}
			if res != nil && res.Status != p.Status {
				w.log.Info().Str("payment_id", p.ID).Str("status", string(res.Status)).Msg("payment reconciled by poll")
			}
			return nil
		})
		if err != nil {
			break
		}
		processed++
	}
	failed = pool.Stop()
	if processed > 0 {
		w.log.Debug().Int("processed", processed).Int("failed", failed).Msg("poll pass done")
	}
	return processed, failed
}
