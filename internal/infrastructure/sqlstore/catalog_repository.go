package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/modushop/internal/domain/catalog"
	"github.com/Zhima-Mochi/modushop/internal/storage"
)

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) (*CatalogRepository, error) {
	r := &CatalogRepository{db: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

var _ catalog.Repository = (*CatalogRepository)(nil)

func (r *CatalogRepository) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price_amount TEXT NOT NULL,
		price_currency TEXT NOT NULL,
		current_quantity INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);`
	_, err := r.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("sqlstore: migrate products: %w", err)
	}
	return nil
}

func (r *CatalogRepository) Create(ctx context.Context, tx storage.Tx, p *catalog.Product) error {
	sqlTx, err := Unwrap(tx)
	if err != nil {
		return err
	}

	query := `INSERT INTO products (name, description, price_amount, price_currency, current_quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	res, err := sqlTx.ExecContext(ctx, query,
		p.Name,
		p.Description,
		p.PriceAmount.String(),
		p.PriceCurrency,
		p.CurrentQuantity,
		p.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: insert product: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlstore: product id: %w", err)
	}
	p.ID = id
	return nil
}

func (r *CatalogRepository) SetQuantity(ctx context.Context, tx storage.Tx, productID int64, quantity int) error {
	sqlTx, err := Unwrap(tx)
	if err != nil {
		return err
	}

	res, err := sqlTx.ExecContext(ctx,
		`UPDATE products SET current_quantity = ? WHERE id = ?`, quantity, productID)
	if err != nil {
		return fmt.Errorf("sqlstore: set product %d quantity: %w", productID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: set product %d quantity: %w", productID, err)
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *CatalogRepository) FindByID(ctx context.Context, productID int64) (*catalog.Product, error) {
	query := `SELECT id, name, description, price_amount, price_currency, current_quantity, created_at
		FROM products WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, productID)

	p, err := scanProduct(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *CatalogRepository) List(ctx context.Context, offset, limit int) ([]*catalog.Product, error) {
	query := `SELECT id, name, description, price_amount, price_currency, current_quantity, created_at
		FROM products ORDER BY id ASC LIMIT ? OFFSET ?`
	return r.query(ctx, query, limit, offset)
}

func (r *CatalogRepository) SearchByNameOrDescription(ctx context.Context, name, description string, offset, limit int) ([]*catalog.Product, error) {
	query := `SELECT id, name, description, price_amount, price_currency, current_quantity, created_at
		FROM products
		WHERE name LIKE ? OR description LIKE ?
		ORDER BY id ASC LIMIT ? OFFSET ?`
	return r.query(ctx, query, "%"+name+"%", "%"+description+"%", limit, offset)
}

// ListPricedAtMost casts before comparing: price_amount is decimal text, and
// as text "9" would sort above "10".
func (r *CatalogRepository) ListPricedAtMost(ctx context.Context, max decimal.Decimal, offset, limit int) ([]*catalog.Product, error) {
	query := `SELECT id, name, description, price_amount, price_currency, current_quantity, created_at
		FROM products
		WHERE CAST(price_amount AS NUMERIC) <= CAST(? AS NUMERIC)
		ORDER BY id ASC LIMIT ? OFFSET ?`
	return r.query(ctx, query, max.String(), limit, offset)
}

func (r *CatalogRepository) ListOutOfStock(ctx context.Context) ([]*catalog.Product, error) {
	query := `SELECT id, name, description, price_amount, price_currency, current_quantity, created_at
		FROM products WHERE current_quantity < 1 ORDER BY id ASC`
	return r.query(ctx, query)
}

func (r *CatalogRepository) query(ctx context.Context, query string, args ...any) ([]*catalog.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []*catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterate products: %w", err)
	}
	return products, nil
}

func scanProduct(scan func(dest ...any) error) (*catalog.Product, error) {
	var (
		id          int64
		name        string
		description string
		amount      string
		currency    string
		quantity    int
		createdAt   string
	)
	if err := scan(&id, &name, &description, &amount, &currency, &quantity, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlstore: scan product: %w", err)
	}

	price, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: product %d price %q: %w", id, amount, err)
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: product %d created_at: %w", id, err)
	}

	return &catalog.Product{
		ID:              id,
		Name:            name,
		Description:     description,
		PriceAmount:     price,
		PriceCurrency:   currency,
		CurrentQuantity: quantity,
		CreatedAt:       created,
	}, nil
}
