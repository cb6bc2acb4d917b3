package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appinventory "github.com/Zhima-Mochi/modushop/internal/application/inventory"
	domcatalog "github.com/Zhima-Mochi/modushop/internal/domain/catalog"
	domain "github.com/Zhima-Mochi/modushop/internal/domain/inventory"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/eventbus"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/memory"
)

type fixture struct {
	svc *appinventory.Service
	bus *eventbus.Bus
	log *memory.EventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	log := memory.NewEventLog(store)
	bus, err := eventbus.New(log)
	require.NoError(t, err)
	require.NoError(t, eventbus.RegisterType[domcatalog.ProductCreatedEvent](bus))
	require.NoError(t, eventbus.RegisterType[domain.QuantityChangedEvent](bus))

	svc := appinventory.NewService(
		memory.NewInventoryRepository(store),
		memory.NewTxRunner(store),
		bus,
		nil,
	)
	return &fixture{svc: svc, bus: bus, log: log}
}

func (f *fixture) seedStock(t *testing.T, productID int64, quantity int) {
	t.Helper()
	err := f.svc.OnProductCreated(context.Background(), domcatalog.ProductCreatedEvent{
		ProductID: productID,
		Quantity:  quantity,
	})
	require.NoError(t, err)
}

func TestOnProductCreatedProvisionsStockOnce(t *testing.T) {
	f := newFixture(t)

	var changes []domain.QuantityChangedEvent
	require.NoError(t, eventbus.Subscribe(f.bus, "test-listener", func(_ context.Context, e domain.QuantityChangedEvent) error {
		changes = append(changes, e)
		return nil
	}))

	f.seedStock(t, 1, 500)

	quantity, err := f.svc.Quantity(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 500, quantity)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.NewQuantityChangedEvent(1, 500), changes[0])

	// Redelivery of the creation event must not publish another change.
	f.seedStock(t, 1, 500)
	assert.Len(t, changes, 1)

	quantity, err = f.svc.Quantity(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 500, quantity)
}

func TestAddStockPublishesAbsoluteQuantity(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, 1, 5)

	var changes []domain.QuantityChangedEvent
	require.NoError(t, eventbus.Subscribe(f.bus, "test-listener", func(_ context.Context, e domain.QuantityChangedEvent) error {
		changes = append(changes, e)
		return nil
	}))

	quantity, err := f.svc.AddStock(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 12, quantity)
	require.Len(t, changes, 1)
	assert.Equal(t, 12, changes[0].NewQuantity)

	_, err = f.svc.AddStock(context.Background(), 1, 0)
	assert.ErrorIs(t, err, appinventory.ErrInvalidQuantity)

	_, err = f.svc.AddStock(context.Background(), 404, 1)
	assert.ErrorIs(t, err, appinventory.ErrNotFound)
}

func TestPurchaseGuardsStock(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, 1, 3)

	remaining, err := f.svc.Purchase(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	_, err = f.svc.Purchase(context.Background(), 1, 2)
	assert.ErrorIs(t, err, appinventory.ErrInsufficientStock)

	// The failed purchase must not have changed anything.
	quantity, err := f.svc.Quantity(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, quantity)

	_, err = f.svc.Purchase(context.Background(), 404, 1)
	assert.ErrorIs(t, err, appinventory.ErrNotFound)
}

func TestOutOfStockProductIDs(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, 1, 0)
	f.seedStock(t, 2, 4)
	f.seedStock(t, 3, 0)

	ids, err := f.svc.OutOfStockProductIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
}
