package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/config"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/adapter"
	"telegram-generation-billing/internal/infra/i18n"
	"telegram-generation-billing/internal/infra/logging"
	"telegram-generation-billing/internal/usecase"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// BotAPI is the slice of *tgbotapi.BotAPI the adapter uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// RealTelegramBotAdapter polls updates, routes commands and callbacks to the
// use cases, and doubles as the notifier for credited payments.
type RealTelegramBotAdapter struct {
	bot      BotAPI
	username string
	userUC   usecase.UserUseCase
	payUC    usecase.PaymentUseCase
	promoUC  usecase.PromoUseCase
	pricing  []model.PricingTier
	tr       *i18n.Translator

	adminIDsMap   map[int64]struct{}
	updateWorkers int
	log           *zerolog.Logger
}

// NewRealTelegramBotAdapter dials the Bot API with cfg.Token.
func NewRealTelegramBotAdapter(
	cfg config.BotConfig,
	userUC usecase.UserUseCase,
	payUC usecase.PaymentUseCase,
	promoUC usecase.PromoUseCase,
	pricing []model.PricingTier,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if cfg.Token == "" {
		return nil, errors.New("bot token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	if cfg.Username == "" {
		cfg.Username = bot.Self.UserName
	}
	return NewTelegramBotAdapterWithAPI(bot, cfg, userUC, payUC, promoUC, pricing, logger)
}

func NewTelegramBotAdapterWithAPI(
	bot BotAPI,
	cfg config.BotConfig,
	userUC usecase.UserUseCase,
	payUC usecase.PaymentUseCase,
	promoUC usecase.PromoUseCase,
	pricing []model.PricingTier,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if userUC == nil || payUC == nil || promoUC == nil {
		return nil, errors.New("telegram adapter: use cases are required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	adminMap := map[int64]struct{}{}
	for _, id := range cfg.AdminIDs {
		adminMap[id] = struct{}{}
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	tr, err := i18n.NewTranslator(i18n.LocalesFS, lang)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "TelegramBot").Str("lang", lang).Logger()
	return &RealTelegramBotAdapter{
		bot:           bot,
		username:      cfg.Username,
		userUC:        userUC,
		payUC:         payUC,
		promoUC:       promoUC,
		pricing:       pricing,
		tr:            tr,
		adminIDsMap:   adminMap,
		updateWorkers: workers,
		log:           &l,
	}, nil
}

// StartPolling blocks until ctx is cancelled. Updates fan out to a fixed
// worker pool; one user's slow handler never stalls the others.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if err := r.SetMenuCommands(); err != nil {
		r.log.Warn().Err(err).Msg("failed to set bot commands")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				if err := r.handleUpdate(ctx, up); err != nil {
					r.log.Error().Err(err).Int("worker", id).Int("update_id", up.UpdateID).Msg("update handling failed")
				}
			}
		}(i)
	}

	r.log.Info().Int("workers", r.updateWorkers).Msg("telegram polling started")
	for {
		select {
		case <-ctx.Done():
			r.bot.StopReceivingUpdates()
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				close(updateChan)
				wg.Wait()
				return nil
			}
			select {
			case updateChan <- up:
			case <-ctx.Done():
			}
		}
	}
}

// Username is the bot's @handle without the at sign.
func (r *RealTelegramBotAdapter) Username() string { return r.username }

// SetMenuCommands publishes the command list shown in the Telegram client.
func (r *RealTelegramBotAdapter) SetMenuCommands() error {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: r.tr.T("cmd_start")},
		tgbotapi.BotCommand{Command: "balance", Description: r.tr.T("cmd_balance")},
		tgbotapi.BotCommand{Command: "buy", Description: r.tr.T("cmd_buy")},
		tgbotapi.BotCommand{Command: "promo", Description: r.tr.T("cmd_promo")},
		tgbotapi.BotCommand{Command: "referral", Description: r.tr.T("cmd_referral")},
		tgbotapi.BotCommand{Command: "help", Description: r.tr.T("cmd_help")},
	)
	_, err := r.bot.Request(cmds)
	return err
}

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(tgID, text)
	_, err := r.bot.Send(msg)
	return err
}

func (r *RealTelegramBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		kr := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, kr)
	}

	msg := tgbotapi.NewMessage(tgID, text)
	if len(kbRows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	}
	_, err := r.bot.Send(msg)
	return err
}

// NotifyPaymentCredited tells the buyer that a webhook or poll credited their payment.
func (r *RealTelegramBotAdapter) NotifyPaymentCredited(ctx context.Context, tgID, generations, balance int64) error {
	return r.sendMainMenu(ctx, tgID, r.tr.T("payment_credited", generations, balance))
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}
	msg := update.Message
	if msg == nil || msg.From == nil || !msg.IsCommand() {
		return nil
	}
	ctx = logging.WithTgID(ctx, msg.From.ID)

	handler, ok := r.commandRoutes()[msg.Command()]
	if !ok {
		return r.SendMessage(ctx, msg.Chat.ID, r.tr.T("unknown_command"))
	}
	return handler(ctx, msg)
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	chatID := query.From.ID
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	}
	ctx = logging.WithTgID(ctx, query.From.ID)
	data := strings.TrimSpace(query.Data)

	if fn, ok := r.cbRoutes()[data]; ok {
		return fn(ctx, query.From.ID, chatID, data)
	}
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, query.From.ID, chatID, strings.TrimPrefix(data, pr.Prefix))
		}
	}
	return errors.New("unknown callback data")
}
