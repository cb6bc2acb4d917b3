package eventbus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/modushop/internal/domain/event"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/eventbus"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/modushop/internal/storage"
)

type widgetAdded struct {
	WidgetID int `json:"widget_id"`
}

func (widgetAdded) EventName() string { return "test.widget_added" }

func (e widgetAdded) AddedWidgetID() int { return e.WidgetID }

// widgetObserved is satisfied by widgetAdded without naming it.
type widgetObserved interface {
	event.Event
	AddedWidgetID() int
}

type fixture struct {
	bus    *eventbus.Bus
	log    *memory.EventLog
	runner *memory.TxRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	log := memory.NewEventLog(store)
	bus, err := eventbus.New(log)
	require.NoError(t, err)
	require.NoError(t, eventbus.RegisterType[widgetAdded](bus))

	return &fixture{
		bus:    bus,
		log:    log,
		runner: memory.NewTxRunner(store),
	}
}

func (f *fixture) publish(t *testing.T, e event.Event) {
	t.Helper()
	err := f.runner.RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return f.bus.Publish(ctx, tx, e)
	})
	require.NoError(t, err)
}

func TestPublishFansOutOneEnvelopePerListener(t *testing.T) {
	f := newFixture(t)

	var aGot, bGot []int
	require.NoError(t, eventbus.Subscribe(f.bus, "listener-a", func(_ context.Context, e widgetAdded) error {
		aGot = append(aGot, e.WidgetID)
		return nil
	}))
	require.NoError(t, eventbus.Subscribe(f.bus, "listener-b", func(_ context.Context, e widgetAdded) error {
		bGot = append(bGot, e.WidgetID)
		return nil
	}))

	f.publish(t, widgetAdded{WidgetID: 7})

	assert.Equal(t, []int{7}, aGot)
	assert.Equal(t, []int{7}, bGot)

	all, err := f.log.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, env := range all {
		assert.Equal(t, "test.widget_added", env.EventType)
		assert.True(t, env.Completed())
	}
}

func TestPublishRollbackLeavesNoEnvelopes(t *testing.T) {
	f := newFixture(t)

	invoked := 0
	require.NoError(t, eventbus.Subscribe(f.bus, "listener-a", func(_ context.Context, _ widgetAdded) error {
		invoked++
		return nil
	}))

	boom := errors.New("business write failed")
	err := f.runner.RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		if err := f.bus.Publish(ctx, tx, widgetAdded{WidgetID: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Zero(t, invoked)
	all, findErr := f.log.FindAll(context.Background())
	require.NoError(t, findErr)
	assert.Empty(t, all)
}

func TestPublishWithoutListenersIsNoOp(t *testing.T) {
	f := newFixture(t)

	f.publish(t, widgetAdded{WidgetID: 1})

	all, err := f.log.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPublishRequiresRegisteredType(t *testing.T) {
	store := memory.NewStore()
	bus, err := eventbus.New(memory.NewEventLog(store))
	require.NoError(t, err)

	err = memory.NewTxRunner(store).RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return bus.Publish(ctx, tx, widgetAdded{WidgetID: 1})
	})
	assert.ErrorIs(t, err, eventbus.ErrEventTypeNotRegistered)
}

func TestPublishArgumentValidation(t *testing.T) {
	f := newFixture(t)

	err := f.runner.RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return f.bus.Publish(ctx, tx, nil)
	})
	assert.ErrorIs(t, err, eventbus.ErrEventRequired)

	assert.ErrorIs(t, f.bus.Publish(context.Background(), nil, widgetAdded{}), eventbus.ErrTransactionRequired)
}

func TestDuplicateListenerIDRejected(t *testing.T) {
	f := newFixture(t)

	handler := func(_ context.Context, _ widgetAdded) error { return nil }
	require.NoError(t, eventbus.Subscribe(f.bus, "listener-a", handler))

	err := eventbus.Subscribe(f.bus, "listener-a", handler)
	assert.ErrorIs(t, err, eventbus.ErrListenerAlreadyRegistered)
}

func TestDuplicateTypeRegistrationRejected(t *testing.T) {
	f := newFixture(t)

	err := eventbus.RegisterType[widgetAdded](f.bus)
	assert.ErrorIs(t, err, eventbus.ErrEventTypeAlreadyRegistered)
}

func TestCapabilitySubscriptionReceivesSatisfyingEvents(t *testing.T) {
	f := newFixture(t)

	var got []int
	require.NoError(t, eventbus.Subscribe(f.bus, "capability-listener", func(_ context.Context, e widgetObserved) error {
		got = append(got, e.AddedWidgetID())
		return nil
	}))

	f.publish(t, widgetAdded{WidgetID: 42})

	assert.Equal(t, []int{42}, got)
}
