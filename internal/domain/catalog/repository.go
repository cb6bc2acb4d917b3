package catalog

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/modushop/internal/storage"
)

// Repository persists products. Mutations take the ambient transaction so
// they commit atomically with the envelopes published alongside them.
type Repository interface {
	// Create inserts the product and assigns its id.
	Create(ctx context.Context, tx storage.Tx, p *Product) error

	// SetQuantity overwrites the product's current quantity with an absolute
	// value. Returns ErrNotFound when no such product exists. The absolute
	// write keeps quantity synchronization idempotent under event
	// re-delivery.
	SetQuantity(ctx context.Context, tx storage.Tx, productID int64, quantity int) error

	FindByID(ctx context.Context, productID int64) (*Product, error)

	// List returns one page of products in id order.
	List(ctx context.Context, offset, limit int) ([]*Product, error)

	// SearchByNameOrDescription returns one page of products whose name
	// contains name or whose description contains description,
	// case-insensitive. An empty fragment matches everything.
	SearchByNameOrDescription(ctx context.Context, name, description string, offset, limit int) ([]*Product, error)

	// ListPricedAtMost returns one page of products priced at or below max.
	ListPricedAtMost(ctx context.Context, max decimal.Decimal, offset, limit int) ([]*Product, error)

	// ListOutOfStock returns products whose current quantity is below one.
	ListOutOfStock(ctx context.Context) ([]*Product, error)
}
