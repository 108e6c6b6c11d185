package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/config"
	"telegram-generation-billing/internal/domain/ports/adapter"
	"telegram-generation-billing/internal/domain/ports/repository"
	"telegram-generation-billing/internal/infra/adapters/events"
	payAdapters "telegram-generation-billing/internal/infra/adapters/payment"
	tele "telegram-generation-billing/internal/infra/adapters/telegram"
	"telegram-generation-billing/internal/infra/api"
	"telegram-generation-billing/internal/infra/db/memory"
	pg "telegram-generation-billing/internal/infra/db/postgres"
	"telegram-generation-billing/internal/infra/logging"
	"telegram-generation-billing/internal/infra/metrics"
	red "telegram-generation-billing/internal/infra/redis"
	"telegram-generation-billing/internal/infra/sched"
	"telegram-generation-billing/internal/usecase"
)

var version = "dev"

// notifierProxy lets the payment use case hold the bot before the bot exists.
// target is set once, before any trigger starts.
type notifierProxy struct {
	target adapter.TelegramBotAdapter
}

func (n *notifierProxy) SendMessage(ctx context.Context, tgID int64, text string) error {
	return n.target.SendMessage(ctx, tgID, text)
}

func (n *notifierProxy) NotifyPaymentCredited(ctx context.Context, tgID, generations, balance int64) error {
	return n.target.NotifyPaymentCredited(ctx, tgID, generations, balance)
}

func (n *notifierProxy) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	return n.target.SendButtons(ctx, tgID, text, rows)
}

type stores struct {
	users    repository.UserRepository
	payments repository.PaymentRepository
	promos   repository.PromoCodeRepository
	tm       repository.TransactionManager
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*stores, error) {
	if cfg.Database.URL == "" {
		logger.Warn().Msg("no database.url: using the in-memory ledger store, data is lost on exit")
		s := memory.NewStore()
		return &stores{
			users:    memory.NewUserRepo(s),
			payments: memory.NewPaymentRepo(s),
			promos:   memory.NewPromoCodeRepo(s),
			tm:       s,
			close:    func() {},
		}, nil
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)
	return &stores{
		users:    pg.NewUserRepo(pool),
		payments: pg.NewPaymentRepo(pool),
		promos:   pg.NewPromoCodeRepo(pool),
		tm:       pg.NewTxManager(pool),
		close:    pool.Close,
	}, nil
}

func newGateway(cfg *config.Config) (adapter.PaymentGateway, error) {
	switch cfg.Payment.Driver {
	case "noop":
		return payAdapters.NewNoopPaymentGateway(), nil
	default:
		return payAdapters.NewRobokassaGateway(cfg.Payment.Robokassa, nil)
	}
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: in-memory store and noop gateway allowed")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exit")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, cfg.Payment.Driver)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Str("payment_driver", cfg.Payment.Driver).
		Str("database", logging.Redact(cfg.Database.URL, cfg.Runtime.Dev)).
		Str("bot_token", logging.Redact(cfg.Bot.Token, cfg.Runtime.Dev)).Msg("starting")

	// ---- Ledger store ----
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.close()

	// ---- Redis (optional) ----
	var (
		limiter adapter.RateLimiter
		lease   sched.Lease
	)
	if cfg.Redis.URL != "" {
		cli, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer cli.Close()
		limiter = red.NewRateLimiter(cli)
		lease = red.NewLocker(cli)
	} else {
		logger.Warn().Msg("no redis.url: rate limiting and the poll lease are disabled")
	}

	// ---- Events ----
	var publisher adapter.EventPublisher = events.NewLogPublisher(logger)
	if len(cfg.Events.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Events.Kafka, logger)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		publisher = kp
	}
	defer publisher.Close()

	// ---- Gateway ----
	gateway, err := newGateway(cfg)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	// ---- Use cases ----
	notifier := &notifierProxy{}
	balanceUC := usecase.NewBalanceUseCase(st.users, st.tm, logger)
	userUC := usecase.NewUserUseCase(st.users, balanceUC, usecase.RegistrationPolicy{
		InitialBalance: cfg.Generations.InitialCount,
		ReferralBonus:  cfg.Generations.ReferralBonus,
	}, logger)
	paymentUC := usecase.NewPaymentUseCase(st.payments, st.users, balanceUC, st.tm, gateway, notifier, publisher, limiter,
		usecase.PaymentSettings{
			PendingTTL:  cfg.Payment.PendingTTL,
			Pricing:     cfg.Pricing,
			ManualLimit: cfg.RateLimit.ManualCheck.Limit,
			ManualEvery: cfg.RateLimit.ManualCheck.Window,
		}, logger)
	promoUC := usecase.NewRateLimitedPromoUseCase(
		usecase.NewPromoUseCase(st.promos, balanceUC, st.tm, publisher, logger),
		limiter, cfg.RateLimit.Promo.Limit, cfg.RateLimit.Promo.Window, logger)

	// ---- Telegram ----
	if cfg.Bot.Token != "" {
		bot, err := tele.NewRealTelegramBotAdapter(cfg.Bot, userUC, paymentUC, promoUC, cfg.Pricing, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notifier.target = bot
		if cfg.Bot.Username == "" {
			cfg.Bot.Username = bot.Username()
		}
		go func() {
			if err := bot.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	} else {
		logger.Warn().Msg("no bot.token: telegram messages are only logged")
		notifier.target = tele.NewNoopBotAdapter(logger)
	}

	// ---- HTTP ----
	auth := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	srv := api.NewServer(paymentUC, promoUC, balanceUC, userUC, auth, cfg.Bot.Username, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	// ---- Poll loop ----
	reconciler := sched.NewPaymentReconciler(paymentUC, cfg.Payment.PollInterval, cfg.Payment.PollBatch, lease, logger).
		WithWorkers(cfg.Payment.PollWorkers)
	go func() { _ = reconciler.Run(ctx) }()

	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	return nil
}
