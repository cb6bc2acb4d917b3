package eventbus

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/modushop/internal/domain/event"
	"github.com/Zhima-Mochi/modushop/internal/observability"
	"github.com/Zhima-Mochi/modushop/internal/observability/logctx"
)

// Outcome reports what happened to a single envelope delivery attempt.
type Outcome struct {
	// Delivered is true when the listener handled the event, even if the
	// completion mark could not be persisted afterwards.
	Delivered bool
	Err       error
}

// Dispatcher drives single-envelope delivery: decode the payload, invoke the
// envelope's listener, and mark the envelope complete. Failures are isolated
// per envelope; a failing listener never blocks siblings of the same event.
type Dispatcher struct {
	bus *Bus
}

func newDispatcher(b *Bus) *Dispatcher {
	return &Dispatcher{bus: b}
}

// Deliver attempts one delivery of env. It never panics: listener panics are
// recovered and reported as failed outcomes so one broken listener cannot
// take down the dispatch loop. Delivery of an already completed envelope is a
// no-op.
func (d *Dispatcher) Deliver(ctx context.Context, env *event.Envelope) Outcome {
	if env == nil {
		return Outcome{Err: ErrEnvelopeRequired}
	}
	if env.Completed() {
		return Outcome{Delivered: true}
	}

	b := d.bus
	logger := logctx.FromOr(ctx, b.logger).With(
		observability.F("event", env.EventType),
		observability.F("listener", env.ListenerID),
		observability.F("envelope_id", env.ID.String()),
	)

	ctx, span := b.tel.Tracer().Start(ctx, "eventbus.deliver",
		attribute.String("event", env.EventType),
		attribute.String("listener", env.ListenerID),
	)
	defer span.End()

	start := time.Now()
	err := d.invoke(ctx, env)
	b.tel.Histogram(observability.MDeliveryDuration).Observe(time.Since(start).Seconds(),
		observability.L("event", env.EventType),
		observability.L("listener", env.ListenerID),
	)

	if err != nil {
		span.RecordError(err)
		b.tel.Counter(observability.MEnvelopeFailures).Add(1,
			observability.L("event", env.EventType),
			observability.L("listener", env.ListenerID),
		)
		logger.Error("envelope_delivery_failed", observability.F("error", err.Error()))
		return Outcome{Err: err}
	}

	completedAt := time.Now().UTC()
	if markErr := b.log.MarkComplete(ctx, env.ID, completedAt); markErr != nil {
		// The listener already ran; the envelope stays pending and will be
		// redelivered by the recovery scanner. Listeners must tolerate that.
		b.tel.Counter(observability.MEnvelopeStateFailures).Add(1,
			observability.L("listener", env.ListenerID),
		)
		logger.Warn("envelope_completion_not_persisted",
			observability.F("error", markErr.Error()),
		)
		return Outcome{Delivered: true, Err: markErr}
	}
	env.CompletedAt = &completedAt

	b.tel.Counter(observability.MEnvelopesDelivered).Add(1,
		observability.L("event", env.EventType),
		observability.L("listener", env.ListenerID),
	)
	logger.Debug("envelope_delivered")
	return Outcome{Delivered: true}
}

func (d *Dispatcher) invoke(ctx context.Context, env *event.Envelope) (err error) {
	sub, ok := d.bus.lookup(env.ListenerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrListenerNotRegistered, env.ListenerID)
	}

	e, err := d.bus.decode(env.EventType, env.Payload)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: listener %s: %v", ErrHandlerPanicked, env.ListenerID, r)
		}
	}()
	return sub.handle(ctx, e)
}
