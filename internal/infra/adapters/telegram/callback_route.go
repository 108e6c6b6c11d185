package telegram

import (
	"context"
	"errors"
	"strconv"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/adapter"
	"telegram-generation-billing/internal/infra/metrics"
	"telegram-generation-billing/internal/usecase"
)

const (
	cbBuyPrefix   = "buy:"
	cbCheckPrefix = "check_payment:"
)

type cbHandler func(ctx context.Context, tgID, chatID int64, data string) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		"cmd:menu": func(ctx context.Context, tgID, chatID int64, _ string) error {
			metrics.IncTelegramUpdate("menu")
			return r.sendMainMenu(ctx, chatID, r.tr.T("menu_prompt"))
		},
		"cmd:buy": func(ctx context.Context, _, chatID int64, _ string) error {
			metrics.IncTelegramUpdate("buy")
			return r.sendPricingMenu(ctx, chatID)
		},
		"cmd:balance": func(ctx context.Context, tgID, chatID int64, _ string) error {
			metrics.IncTelegramUpdate("balance")
			return r.sendBalance(ctx, tgID, chatID)
		},
	}
}

func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: cbBuyPrefix, Fn: r.buyPrefixCBRoute},
		{Prefix: cbCheckPrefix, Fn: r.checkPaymentCBRoute},
	}
}

func (r *RealTelegramBotAdapter) buyPrefixCBRoute(ctx context.Context, tgID, chatID int64, data string) error {
	metrics.IncTelegramUpdate("buy_tier")
	gen, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return r.sendPricingMenu(ctx, chatID)
	}
	return r.startPurchase(ctx, tgID, chatID, gen)
}

// checkPaymentCBRoute is the manual trigger: it reconciles the payment and
// answers in place.
func (r *RealTelegramBotAdapter) checkPaymentCBRoute(ctx context.Context, tgID, chatID int64, paymentID string) error {
	metrics.IncTelegramUpdate("check_payment")
	res, err := r.payUC.CheckPayment(ctx, paymentID, tgID)
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return r.SendMessage(ctx, chatID, r.tr.T("check_rate_limited"))
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrInvalidArgument):
		return r.SendMessage(ctx, chatID, r.tr.T("payment_not_found"))
	case err != nil:
		r.log.Error().Err(err).Str("payment_id", paymentID).Msg("manual check failed")
		return r.SendMessage(ctx, chatID, r.tr.T("check_failed"))
	}

	switch res.Outcome {
	case usecase.CheckOutcomeCredited:
		return r.sendMainMenu(ctx, chatID, r.tr.T("payment_credited", res.Payment.Generations, res.Balance))
	case usecase.CheckOutcomeFailed:
		return r.SendButtons(ctx, chatID, r.tr.T("payment_failed"), [][]adapter.InlineButton{
			{{Text: r.tr.T("btn_buy"), Data: "cmd:buy"}},
		})
	default:
		return r.SendButtons(ctx, chatID, r.tr.T("payment_pending"), [][]adapter.InlineButton{
			{{Text: r.tr.T("btn_check"), Data: cbCheckPrefix + paymentID}},
		})
	}
}

func (r *RealTelegramBotAdapter) startPurchase(ctx context.Context, tgID, chatID, generations int64) error {
	u, err := r.userUC.GetByTelegramID(ctx, tgID)
	if err != nil {
		return r.SendMessage(ctx, chatID, r.notRegisteredOr(err))
	}
	p, err := r.payUC.Initiate(ctx, u.ID, generations)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return r.sendPricingMenu(ctx, chatID)
	case err != nil:
		r.log.Error().Err(err).Str("user_id", u.ID).Int64("generations", generations).Msg("purchase initiation failed")
		return r.SendMessage(ctx, chatID, r.tr.T("purchase_unavailable"))
	}

	text := r.tr.T("purchase_offer", p.Generations, model.FormatAmount(p.Amount), p.Currency)
	return r.SendButtons(ctx, chatID, text, [][]adapter.InlineButton{
		{{Text: r.tr.T("btn_pay"), URL: p.PaymentLink}},
		{{Text: r.tr.T("btn_check"), Data: cbCheckPrefix + p.ID}},
	})
}

func (r *RealTelegramBotAdapter) sendMainMenu(ctx context.Context, chatID int64, intro string) error {
	rows := [][]adapter.InlineButton{
		{{Text: r.tr.T("btn_buy"), Data: "cmd:buy"}},
		{{Text: r.tr.T("btn_balance"), Data: "cmd:balance"}},
	}
	return r.SendButtons(ctx, chatID, intro, rows)
}

func (r *RealTelegramBotAdapter) sendPricingMenu(ctx context.Context, chatID int64) error {
	if len(r.pricing) == 0 {
		return r.SendMessage(ctx, chatID, r.tr.T("no_packages"))
	}
	rows := make([][]adapter.InlineButton, 0, len(r.pricing)+1)
	for _, t := range r.pricing {
		label := r.tr.T("package_label", t.Generations, model.FormatAmount(t.Price), t.Currency)
		rows = append(rows, []adapter.InlineButton{{Text: label, Data: cbBuyPrefix + strconv.FormatInt(t.Generations, 10)}})
	}
	rows = append(rows, []adapter.InlineButton{{Text: r.tr.T("btn_menu"), Data: "cmd:menu"}})
	return r.SendButtons(ctx, chatID, r.tr.T("choose_package"), rows)
}

func (r *RealTelegramBotAdapter) sendBalance(ctx context.Context, tgID, chatID int64) error {
	u, err := r.userUC.GetByTelegramID(ctx, tgID)
	if err != nil {
		return r.SendMessage(ctx, chatID, r.notRegisteredOr(err))
	}
	return r.sendMainMenu(ctx, chatID, r.tr.T("balance_line", u.Balance))
}

func (r *RealTelegramBotAdapter) promoReply(res usecase.PromoResult) string {
	switch res.Outcome {
	case usecase.PromoOutcomeSuccess:
		return r.tr.T("promo_success", res.Amount, res.Balance)
	case usecase.PromoOutcomeExhausted:
		return r.tr.T("promo_exhausted")
	case usecase.PromoOutcomeAlreadyUsed:
		return r.tr.T("promo_already_used")
	case usecase.PromoOutcomeInvalid:
		return r.tr.T("promo_invalid")
	default:
		return r.tr.T("promo_error")
	}
}
