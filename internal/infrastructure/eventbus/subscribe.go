package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Zhima-Mochi/modushop/internal/domain/event"
)

// RegisterType teaches the bus how to rebuild a T from a stored payload, keyed
// by T's event name. Every published concrete type must be registered before
// the first Publish, otherwise envelopes written for it could not be replayed
// by the recovery scanner.
func RegisterType[T event.Event](b *Bus) error {
	var zero T
	eventType := zero.EventName()

	return b.registerType(eventType, func(raw []byte) (event.Event, error) {
		var decoded T
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return decoded, nil
	})
}

// Subscribe registers a listener under a process-wide unique ID. T may be a
// concrete event type or an interface; any published event assignable to T is
// routed to the handler, so consumers can subscribe to a capability they
// define themselves without importing the producer's package.
func Subscribe[T event.Event](b *Bus, listenerID string, handle func(ctx context.Context, e T) error) error {
	if handle == nil {
		return fmt.Errorf("eventbus: nil handler for listener %q", listenerID)
	}

	matches := func(e event.Event) bool {
		_, ok := e.(T)
		return ok
	}
	wrapped := func(ctx context.Context, e event.Event) error {
		typed, ok := e.(T)
		if !ok {
			return fmt.Errorf("%w: listener %s got %T", ErrEventShapeMismatch, listenerID, e)
		}
		return handle(ctx, typed)
	}

	return b.subscribe(listenerID, matches, wrapped)
}
