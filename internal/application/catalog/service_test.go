package catalog_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcatalog "github.com/Zhima-Mochi/modushop/internal/application/catalog"
	domain "github.com/Zhima-Mochi/modushop/internal/domain/catalog"
	dominventory "github.com/Zhima-Mochi/modushop/internal/domain/inventory"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/eventbus"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/memory"
)

type fixture struct {
	svc   *appcatalog.Service
	bus   *eventbus.Bus
	log   *memory.EventLog
	store *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	log := memory.NewEventLog(store)
	bus, err := eventbus.New(log)
	require.NoError(t, err)
	require.NoError(t, eventbus.RegisterType[domain.ProductCreatedEvent](bus))
	require.NoError(t, eventbus.RegisterType[dominventory.QuantityChangedEvent](bus))

	svc := appcatalog.NewService(
		memory.NewCatalogRepository(store),
		memory.NewTxRunner(store),
		bus,
		nil,
	)
	return &fixture{svc: svc, bus: bus, log: log, store: store}
}

func TestCreateProductPersistsAndAnnounces(t *testing.T) {
	f := newFixture(t)

	var announced []dominventory.ProductCreated
	require.NoError(t, eventbus.Subscribe(f.bus, "test-listener", func(_ context.Context, e dominventory.ProductCreated) error {
		announced = append(announced, e)
		return nil
	}))

	product, err := f.svc.CreateProduct(context.Background(), appcatalog.CreateProductInput{
		Name:            "Keyboard",
		PriceAmount:     decimal.NewFromInt(50),
		InitialQuantity: 12,
	})
	require.NoError(t, err)
	assert.Positive(t, product.ID)
	assert.Equal(t, domain.DefaultCurrency, product.PriceCurrency)

	require.Len(t, announced, 1)
	assert.Equal(t, product.ID, announced[0].CreatedProductID())
	assert.Equal(t, 12, announced[0].InitialQuantity())

	all, err := f.log.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Completed())
}

func TestCreateProductValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateProduct(context.Background(), appcatalog.CreateProductInput{
		Name:        "",
		PriceAmount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrNameRequired)

	_, err = f.svc.CreateProduct(context.Background(), appcatalog.CreateProductInput{
		Name:        "Negative",
		PriceAmount: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestProductLookup(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.CreateProduct(context.Background(), appcatalog.CreateProductInput{
		Name:        "Keyboard",
		PriceAmount: decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	found, err := f.svc.Product(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = f.svc.Product(context.Background(), created.ID+999)
	assert.ErrorIs(t, err, appcatalog.ErrNotFound)
}

func TestProductsPagination(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < appcatalog.DefaultPageSize+5; i++ {
		_, err := f.svc.CreateProduct(context.Background(), appcatalog.CreateProductInput{
			Name:        fmt.Sprintf("Product %d", i),
			PriceAmount: decimal.NewFromInt(10),
		})
		require.NoError(t, err)
	}

	first, err := f.svc.Products(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, first, appcatalog.DefaultPageSize)

	second, err := f.svc.Products(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, second, 5)
}

func TestSearchProductIDs(t *testing.T) {
	f := newFixture(t)

	keyboard, err := f.svc.CreateProduct(context.Background(), appcatalog.CreateProductInput{
		Name:        "Mechanical Keyboard",
		Description: "clicky switches",
		PriceAmount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	mouse, err := f.svc.CreateProduct(context.Background(), appcatalog.CreateProductInput{
		Name:        "Mouse",
		Description: "a keyboard companion",
		PriceAmount: decimal.NewFromInt(9),
	})
	require.NoError(t, err)
	_, err = f.svc.CreateProduct(context.Background(), appcatalog.CreateProductInput{
		Name:        "Monitor",
		Description: "27 inch panel",
		PriceAmount: decimal.NewFromInt(300),
	})
	require.NoError(t, err)

	ids, err := f.svc.SearchProductIDs(context.Background(), "KEYBOARD", "keyboard", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{keyboard.ID, mouse.ID}, ids)

	none, err := f.svc.SearchProductIDs(context.Background(), "gamepad", "gamepad", 1)
	require.NoError(t, err)
	assert.Empty(t, none)

	cheap, err := f.svc.ProductIDsPricedAtMost(context.Background(), decimal.NewFromInt(100), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{keyboard.ID, mouse.ID}, cheap)
}

func TestOnQuantityChangedIsIdempotent(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.CreateProduct(context.Background(), appcatalog.CreateProductInput{
		Name:        "Keyboard",
		PriceAmount: decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	e := dominventory.NewQuantityChangedEvent(created.ID, 30)
	require.NoError(t, f.svc.OnQuantityChanged(context.Background(), e))
	// Redelivery applies the same absolute value again.
	require.NoError(t, f.svc.OnQuantityChanged(context.Background(), e))

	found, err := f.svc.Product(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, found.CurrentQuantity)
}

func TestSeedIsIdempotent(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Seed(context.Background()))
	first, err := f.svc.Products(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, first, 3)

	out, err := f.svc.OutOfStockProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 3)

	require.NoError(t, f.svc.Seed(context.Background()))
	again, err := f.svc.Products(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, again, 3)
}
