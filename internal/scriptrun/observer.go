package scriptrun

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/scriptrun-bridge/internal/models"
)

// EventPublisher ships call events to an external sink.
type EventPublisher interface {
	PublishCallEvent(ctx context.Context, event models.CallEvent) error
}

// PublishingObserver forwards every call event to pub. Publish errors are
// logged and never reach the caller's handlers.
func PublishingObserver(pub EventPublisher, logger zerolog.Logger) Observer {
	return ObserverFunc(func(ctx context.Context, event models.CallEvent) {
		if pub == nil {
			return
		}
		if err := pub.PublishCallEvent(ctx, event); err != nil {
			logger.Warn().
				Err(err).
				Str("method", event.Method).
				Str("call_id", event.CallID).
				Msg("call event publish failed")
		}
	})
}
