package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/modushop/internal/domain/catalog"
	"github.com/Zhima-Mochi/modushop/internal/storage"
)

type CatalogRepository struct {
	store *Store
}

func NewCatalogRepository(store *Store) *CatalogRepository {
	return &CatalogRepository{store: store}
}

var _ catalog.Repository = (*CatalogRepository)(nil)

func (r *CatalogRepository) Create(ctx context.Context, tx storage.Tx, p *catalog.Product) error {
	_ = ctx

	mt, err := asTx(tx)
	if err != nil {
		return err
	}

	p.ID = mt.state.nextProductID
	mt.state.nextProductID++
	mt.state.products[p.ID] = cloneProduct(p)
	return nil
}

func (r *CatalogRepository) SetQuantity(ctx context.Context, tx storage.Tx, productID int64, quantity int) error {
	_ = ctx

	mt, err := asTx(tx)
	if err != nil {
		return err
	}

	p, ok := mt.state.products[productID]
	if !ok {
		return catalog.ErrNotFound
	}
	p.CurrentQuantity = quantity
	return nil
}

func (r *CatalogRepository) FindByID(ctx context.Context, productID int64) (*catalog.Product, error) {
	_ = ctx

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.state.products[productID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (r *CatalogRepository) List(ctx context.Context, offset, limit int) ([]*catalog.Product, error) {
	_ = ctx

	all := r.sortedProducts(func(*catalog.Product) bool { return true })
	return page(all, offset, limit), nil
}

func (r *CatalogRepository) SearchByNameOrDescription(ctx context.Context, name, description string, offset, limit int) ([]*catalog.Product, error) {
	_ = ctx

	nameNeedle := strings.ToLower(name)
	descNeedle := strings.ToLower(description)
	all := r.sortedProducts(func(p *catalog.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), nameNeedle) ||
			strings.Contains(strings.ToLower(p.Description), descNeedle)
	})
	return page(all, offset, limit), nil
}

func (r *CatalogRepository) ListPricedAtMost(ctx context.Context, max decimal.Decimal, offset, limit int) ([]*catalog.Product, error) {
	_ = ctx

	all := r.sortedProducts(func(p *catalog.Product) bool {
		return p.PriceAmount.LessThanOrEqual(max)
	})
	return page(all, offset, limit), nil
}

func (r *CatalogRepository) ListOutOfStock(ctx context.Context) ([]*catalog.Product, error) {
	_ = ctx

	return r.sortedProducts(func(p *catalog.Product) bool { return p.CurrentQuantity < 1 }), nil
}

func (r *CatalogRepository) sortedProducts(keep func(*catalog.Product) bool) []*catalog.Product {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*catalog.Product
	for _, p := range r.store.state.products {
		if keep(p) {
			out = append(out, cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func page(all []*catalog.Product, offset, limit int) []*catalog.Product {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}
