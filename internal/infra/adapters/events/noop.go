package events

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/domain/ports/adapter"
)

var _ adapter.EventPublisher = (*LogPublisher)(nil)

// LogPublisher stands in when no broker is configured: events go to the debug log.
type LogPublisher struct {
	log *zerolog.Logger
}

func NewLogPublisher(logger *zerolog.Logger) *LogPublisher {
	l := logger.With().Str("component", "LogPublisher").Logger()
	return &LogPublisher{log: &l}
}

func (p *LogPublisher) Publish(ctx context.Context, e adapter.Event) error {
	p.log.Debug().Str("event", e.Type).Str("event_id", e.ID).Str("key", e.Key).
		Interface("data", e.Data).Msg("event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
