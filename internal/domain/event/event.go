package event

import (
	"context"

	"github.com/Zhima-Mochi/modushop/internal/storage"
)

// Event is any domain event with a name identifier. The name doubles as the
// serialization tag stored on envelopes.
type Event interface {
	EventName() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher records events durably for every interested listener, inside the
// caller's transaction. Listener invocation happens only after that
// transaction commits.
type Publisher interface {
	Publish(ctx context.Context, tx storage.Tx, e Event) error
}
