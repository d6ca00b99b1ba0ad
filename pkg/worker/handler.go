package worker

import (
	"context"

	"gerritevents/pkg/gerrit"
)

// Handler is a function that processes an event.
type Handler func(ctx context.Context, evt *Event) error

// Middleware is a function that wraps a handler to add functionality.
type Middleware func(Handler) Handler

// RefUpdateHandler processes the RefUpdate of a ref-updated event.
type RefUpdateHandler func(ctx context.Context, evt *Event, update *gerrit.RefUpdate) error

// HandleRefUpdated registers h for ref-updated events. Events without a
// refUpdate object are acknowledged without calling h.
func (w *Worker) HandleRefUpdated(h RefUpdateHandler) {
	if h == nil {
		return
	}
	w.HandleType(gerrit.EventTypeRefUpdated, func(ctx context.Context, evt *Event) error {
		if evt.RefUpdate == nil {
			w.logger.Printf("ref-updated without refUpdate topic=%s", evt.Topic)
			return nil
		}
		return h(ctx, evt, evt.RefUpdate)
	})
}
