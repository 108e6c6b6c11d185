package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// TelegramBotAdapter is the outbound side of the bot. Texts passed to
// SendMessage and SendButtons are sent as is; NotifyPaymentCredited renders
// the confirmation in the bot's language.
type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
	SendButtons(ctx context.Context, telegramID int64, text string, rows [][]InlineButton) error
	NotifyPaymentCredited(ctx context.Context, telegramID, generations, balance int64) error
}
