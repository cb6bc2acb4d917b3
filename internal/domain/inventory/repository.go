package inventory

import (
	"context"

	"github.com/Zhima-Mochi/modushop/internal/storage"
)

// Repository persists per-product stock. Quantity mutations run as single
// guarded updates inside the ambient transaction, so concurrent deliveries
// touching the same product serialize on the row instead of racing a
// read-modify-write cycle.
type Repository interface {
	// EnsureStock creates the stock entry if absent and reports the
	// quantity now on record. Calling it again for an existing product is a
	// no-op that returns the current quantity, which keeps initial-stock
	// creation idempotent under event re-delivery.
	EnsureStock(ctx context.Context, tx storage.Tx, productID int64, initialQuantity int) (quantity int, created bool, err error)

	// AddQuantity atomically adds delta (which may be negative) and returns
	// the resulting quantity. Returns ErrNotFound when no entry exists and
	// ErrInsufficientStock when the result would drop below zero.
	AddQuantity(ctx context.Context, tx storage.Tx, productID int64, delta int) (int, error)

	Get(ctx context.Context, productID int64) (*Stock, error)

	// ListOutOfStock returns ids of products whose stock is below one.
	ListOutOfStock(ctx context.Context) ([]int64, error)
}
