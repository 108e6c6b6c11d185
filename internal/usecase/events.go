package usecase

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/domain/ports/adapter"
)

func newEvent(typ, key string, data map[string]any) adapter.Event {
	return adapter.Event{
		ID:         ulid.Make().String(),
		Type:       typ,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// publishEvent is best-effort: the ledger change it describes is already committed.
func publishEvent(ctx context.Context, pub adapter.EventPublisher, log *zerolog.Logger, e adapter.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("event", e.Type).Str("event_id", e.ID).Msg("event publish failed")
	}
}
