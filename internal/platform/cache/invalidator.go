package cache

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/woundcare/clinic/internal/platform/db"
	"github.com/woundcare/clinic/internal/platform/websocket"
)

// Notifier is implemented by Invalidator. Services depend on it so tests can
// record the topics a mutation touched.
type Notifier interface {
	Invalidate(ctx context.Context, topics ...string)
}

// Invalidator drops cached reads for the request's clinic and broadcasts an
// invalidate event per topic. It runs after the write committed, so failures
// are logged rather than returned.
type Invalidator struct {
	store     Store
	publisher websocket.Publisher
	logger    zerolog.Logger
}

func NewInvalidator(store Store, publisher websocket.Publisher, logger zerolog.Logger) *Invalidator {
	if store == nil {
		store = NopStore{}
	}
	return &Invalidator{store: store, publisher: publisher, logger: logger}
}

func (i *Invalidator) Invalidate(ctx context.Context, topics ...string) {
	clinic := db.ClinicFromContext(ctx)
	if clinic == "" || len(topics) == 0 {
		return
	}

	prefixes := make([]string, len(topics))
	for n, t := range topics {
		prefixes[n] = Key(clinic, t)
	}
	if err := i.store.DeletePrefix(ctx, prefixes...); err != nil {
		i.logger.Warn().Err(err).Str("clinic", clinic).Strs("topics", topics).Msg("cache invalidation failed")
	}

	if i.publisher == nil {
		return
	}
	for _, t := range topics {
		ev := websocket.Event{Type: websocket.EventInvalidate, Clinic: clinic, Topic: t}
		if err := i.publisher.Publish(ctx, ev); err != nil {
			i.logger.Warn().Err(err).Str("clinic", clinic).Str("topic", t).Msg("invalidate broadcast failed")
		}
	}
}

// NopNotifier discards invalidations.
type NopNotifier struct{}

func (NopNotifier) Invalidate(context.Context, ...string) {}
