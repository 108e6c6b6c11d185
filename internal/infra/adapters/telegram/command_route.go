package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

const referralPrefix = "ref_"

func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":    r.handleStartCommand,
		"balance":  r.handleBalanceCommand,
		"buy":      r.handleBuyCommand,
		"promo":    r.handlePromoCommand,
		"referral": r.handleReferralCommand,
		"help":     r.handleHelpCommand,

		"newpromo": r.adminOnly(r.handleNewPromoCommand),
	}
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if _, isAdmin := r.adminIDsMap[message.From.ID]; !isAdmin {
			r.log.Warn().Bool("security", true).Int64("tg_id", message.From.ID).Str("command", message.Command()).Msg("admin command refused")
			return r.SendMessage(ctx, message.Chat.ID, r.tr.T("admin_only"))
		}
		return next(ctx, message)
	}
}

// parseReferrer reads "ref_<telegram id>" from a /start deep link.
func parseReferrer(arg string, self int64) *int64 {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, referralPrefix) {
		return nil
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, referralPrefix), 10, 64)
	if err != nil || id <= 0 || id == self {
		return nil
	}
	return &id
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	metrics.IncTelegramUpdate("start")
	from := message.From
	ref := parseReferrer(message.CommandArguments(), from.ID)

	u, created, err := r.userUC.Register(ctx, from.ID, from.FirstName, from.UserName, ref)
	if err != nil {
		r.log.Error().Err(err).Int64("tg_id", from.ID).Msg("registration failed")
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("error_start_again"))
	}

	greeting := r.tr.T("welcome_back", displayName(from))
	if created {
		greeting = r.tr.T("welcome_new", displayName(from), u.Balance)
	}
	return r.sendMainMenu(ctx, message.Chat.ID, greeting+"\n\n"+r.tr.T("balance_line", u.Balance))
}

func displayName(u *tgbotapi.User) string {
	if strings.TrimSpace(u.FirstName) != "" {
		return u.FirstName
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return "there"
}

func (r *RealTelegramBotAdapter) handleBalanceCommand(ctx context.Context, message *tgbotapi.Message) error {
	metrics.IncTelegramUpdate("balance")
	return r.sendBalance(ctx, message.From.ID, message.Chat.ID)
}

func (r *RealTelegramBotAdapter) handleBuyCommand(ctx context.Context, message *tgbotapi.Message) error {
	metrics.IncTelegramUpdate("buy")
	arg := strings.TrimSpace(message.CommandArguments())
	if arg == "" {
		return r.sendPricingMenu(ctx, message.Chat.ID)
	}
	gen, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return r.sendPricingMenu(ctx, message.Chat.ID)
	}
	return r.startPurchase(ctx, message.From.ID, message.Chat.ID, gen)
}

func (r *RealTelegramBotAdapter) handlePromoCommand(ctx context.Context, message *tgbotapi.Message) error {
	metrics.IncTelegramUpdate("promo")
	code := strings.TrimSpace(message.CommandArguments())
	if code == "" {
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("usage_promo"))
	}
	u, err := r.userUC.GetByTelegramID(ctx, message.From.ID)
	if err != nil {
		return r.SendMessage(ctx, message.Chat.ID, r.notRegisteredOr(err))
	}

	res, err := r.promoUC.Activate(ctx, u.ID, code)
	if errors.Is(err, domain.ErrRateLimited) {
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("promo_rate_limited"))
	}
	if err != nil {
		r.log.Error().Err(err).Str("user_id", u.ID).Msg("promo activation failed")
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("promo_error"))
	}
	return r.SendMessage(ctx, message.Chat.ID, r.promoReply(res))
}

func (r *RealTelegramBotAdapter) handleReferralCommand(ctx context.Context, message *tgbotapi.Message) error {
	metrics.IncTelegramUpdate("referral")
	u, err := r.userUC.GetByTelegramID(ctx, message.From.ID)
	if err != nil {
		return r.SendMessage(ctx, message.Chat.ID, r.notRegisteredOr(err))
	}
	if r.username == "" {
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("referral_unavailable"))
	}
	link := fmt.Sprintf("https://t.me/%s?start=%s%d", r.username, referralPrefix, u.TelegramID)
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T("referral_text", link, u.ReferralBalance))
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	metrics.IncTelegramUpdate("help")
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T("help"))
}

// handleNewPromoCommand: /newpromo <generations> <usage_limit>
func (r *RealTelegramBotAdapter) handleNewPromoCommand(ctx context.Context, message *tgbotapi.Message) error {
	metrics.IncTelegramUpdate("newpromo")
	args := strings.Fields(message.CommandArguments())
	if len(args) != 2 {
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("usage_newpromo"))
	}
	gen, err1 := strconv.ParseInt(args[0], 10, 64)
	limit, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("usage_newpromo"))
	}
	pc, err := r.promoUC.Create(ctx, gen, limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return r.SendMessage(ctx, message.Chat.ID, r.tr.T("newpromo_invalid"))
		}
		r.log.Error().Err(err).Msg("promo creation failed")
		return r.SendMessage(ctx, message.Chat.ID, r.tr.T("newpromo_failed"))
	}
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T("newpromo_created", pc.Code, pc.Generations, pc.UsageLimit))
}

func (r *RealTelegramBotAdapter) notRegisteredOr(err error) string {
	if errors.Is(err, domain.ErrNotFound) {
		return r.tr.T("not_registered")
	}
	return r.tr.T("error_generic")
}
