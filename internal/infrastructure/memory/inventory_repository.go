package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Zhima-Mochi/modushop/internal/domain/inventory"
	"github.com/Zhima-Mochi/modushop/internal/storage"
)

type InventoryRepository struct {
	store *Store
}

func NewInventoryRepository(store *Store) *InventoryRepository {
	return &InventoryRepository{store: store}
}

var _ inventory.Repository = (*InventoryRepository)(nil)

func (r *InventoryRepository) EnsureStock(ctx context.Context, tx storage.Tx, productID int64, initialQuantity int) (int, bool, error) {
	_ = ctx

	mt, err := asTx(tx)
	if err != nil {
		return 0, false, err
	}

	if existing, ok := mt.state.stocks[productID]; ok {
		return existing.Quantity, false, nil
	}

	stock, err := inventory.NewStock(productID, initialQuantity)
	if err != nil {
		return 0, false, err
	}
	mt.state.stocks[productID] = stock
	return stock.Quantity, true, nil
}

func (r *InventoryRepository) AddQuantity(ctx context.Context, tx storage.Tx, productID int64, delta int) (int, error) {
	_ = ctx

	mt, err := asTx(tx)
	if err != nil {
		return 0, err
	}

	stock, ok := mt.state.stocks[productID]
	if !ok {
		return 0, inventory.ErrNotFound
	}
	next := stock.Quantity + delta
	if next < 0 {
		return 0, inventory.ErrInsufficientStock
	}
	stock.Quantity = next
	stock.UpdatedAt = time.Now().UTC()
	return next, nil
}

func (r *InventoryRepository) Get(ctx context.Context, productID int64) (*inventory.Stock, error) {
	_ = ctx

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stock, ok := r.store.state.stocks[productID]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return cloneStock(stock), nil
}

func (r *InventoryRepository) ListOutOfStock(ctx context.Context) ([]int64, error) {
	_ = ctx

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var ids []int64
	for id, stock := range r.store.state.stocks {
		if stock.Quantity < 1 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
