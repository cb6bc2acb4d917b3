package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/modushop/internal/domain/event"
	"github.com/Zhima-Mochi/modushop/internal/observability"
	"github.com/Zhima-Mochi/modushop/internal/observability/logctx"
	"github.com/Zhima-Mochi/modushop/internal/storage"
)

const componentBus = "eventbus"

// Bus is the durable in-process event bus. Publish writes one pending
// envelope per resolved listener into the publication log inside the
// caller's transaction, and defers listener invocation to an after-commit
// hook so listener side effects are never rolled back with the triggering
// operation, and no event is lost once the operation commits.
//
// Registration (event types and listeners) happens once during process
// startup; resolution is by capability, so a listener subscribed to an
// interface type receives any event whose concrete type satisfies it.
type Bus struct {
	log    event.Log
	logger observability.Logger
	tel    observability.Telemetry

	mu         sync.RWMutex
	subs       []*subscription
	byListener map[string]*subscription
	decoders   map[string]decoderFunc

	dispatcher *Dispatcher
}

type decoderFunc func(raw []byte) (event.Event, error)

type subscription struct {
	listenerID string
	matches    func(e event.Event) bool
	handle     event.Handler
}

type Option func(*Bus)

func WithLogger(logger observability.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithTelemetry(tel observability.Telemetry) Option {
	return func(b *Bus) {
		if tel != nil {
			b.tel = tel
		}
	}
}

func New(log event.Log, opts ...Option) (*Bus, error) {
	if log == nil {
		return nil, ErrLogRequired
	}

	b := &Bus{
		log:        log,
		logger:     observability.NopLogger(),
		tel:        observability.NopTelemetry(),
		byListener: make(map[string]*subscription),
		decoders:   make(map[string]decoderFunc),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.logger = b.logger.With(observability.F("component", componentBus))
	b.dispatcher = newDispatcher(b)

	return b, nil
}

// Dispatcher returns the bus's envelope dispatcher, shared with the recovery
// scanner.
func (b *Bus) Dispatcher() *Dispatcher { return b.dispatcher }

// Log exposes the publication log for audit reads.
func (b *Bus) Log() event.Log { return b.log }

var _ event.Publisher = (*Bus)(nil)

// Publish resolves the listeners interested in e, appends one pending
// envelope per listener to the publication log within tx, and schedules
// delivery for after tx commits. An event with zero matching listeners is a
// successful no-op. A storage failure propagates so the surrounding
// transaction rolls back without partial envelopes.
func (b *Bus) Publish(ctx context.Context, tx storage.Tx, e event.Event) error {
	if e == nil {
		return ErrEventRequired
	}
	if tx == nil {
		return ErrTransactionRequired
	}

	eventType := e.EventName()
	if !b.typeRegistered(eventType) {
		// Without a registered decoder the envelope could never be replayed
		// after a restart, which would silently break the delivery guarantee.
		return fmt.Errorf("%w: %s", ErrEventTypeNotRegistered, eventType)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eventbus: encode %s: %w", eventType, err)
	}

	ctx, span := b.tel.Tracer().Start(ctx, "eventbus.publish",
		attribute.String("event", eventType),
	)
	defer span.End()

	subs := b.resolve(e)
	if len(subs) == 0 {
		logctx.FromOr(ctx, b.logger).Debug("event_without_listeners",
			observability.F("event", eventType),
		)
		return nil
	}

	envelopes := make([]*event.Envelope, 0, len(subs))
	for _, sub := range subs {
		env, err := event.NewEnvelope(eventType, sub.listenerID, payload)
		if err != nil {
			return fmt.Errorf("eventbus: envelope for %s: %w", sub.listenerID, err)
		}
		envelopes = append(envelopes, env)
	}

	if err := b.log.Append(ctx, tx, envelopes); err != nil {
		return fmt.Errorf("eventbus: append envelopes: %w", err)
	}

	span.SetAttributes(attribute.Int("eventbus.listeners", len(envelopes)))
	b.tel.Counter(observability.MEnvelopesPublished).Add(float64(len(envelopes)),
		observability.L("event", eventType),
	)

	tx.AfterCommit(func(ctx context.Context) {
		for _, env := range envelopes {
			b.dispatcher.Deliver(ctx, env)
		}
	})

	return nil
}

func (b *Bus) registerType(eventType string, decode decoderFunc) error {
	if eventType == "" {
		return errors.New("eventbus: event type name must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.decoders[eventType]; exists {
		return fmt.Errorf("%w: %s", ErrEventTypeAlreadyRegistered, eventType)
	}
	b.decoders[eventType] = decode
	return nil
}

func (b *Bus) subscribe(listenerID string, matches func(event.Event) bool, handle event.Handler) error {
	if listenerID == "" {
		return ErrListenerIDRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byListener[listenerID]; exists {
		return fmt.Errorf("%w: %s", ErrListenerAlreadyRegistered, listenerID)
	}
	sub := &subscription{listenerID: listenerID, matches: matches, handle: handle}
	b.subs = append(b.subs, sub)
	b.byListener[listenerID] = sub
	return nil
}

func (b *Bus) resolve(e event.Event) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []*subscription
	for _, sub := range b.subs {
		if sub.matches(e) {
			matched = append(matched, sub)
		}
	}
	return matched
}

func (b *Bus) typeRegistered(eventType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.decoders[eventType]
	return ok
}

func (b *Bus) decode(eventType string, payload []byte) (event.Event, error) {
	b.mu.RLock()
	decode, ok := b.decoders[eventType]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventTypeNotRegistered, eventType)
	}
	return decode(payload)
}

func (b *Bus) lookup(listenerID string) (*subscription, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sub, ok := b.byListener[listenerID]
	return sub, ok
}
