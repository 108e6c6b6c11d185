package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter logs outgoing messages instead of sending them. Used when
// no bot token is configured.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "NoopBot").Logger()
	return &NoopBotAdapter{log: &l}
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("tg_id", tgID).Str("text", text).Msg("telegram message")
	return nil
}

func (b *NoopBotAdapter) NotifyPaymentCredited(ctx context.Context, tgID, generations, balance int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("tg_id", tgID).Int64("generations", generations).Int64("balance", balance).Msg("payment credited notification")
	return nil
}

func (b *NoopBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("tg_id", tgID).Str("text", text).Interface("buttons", rows).Msg("telegram message")
	return nil
}
