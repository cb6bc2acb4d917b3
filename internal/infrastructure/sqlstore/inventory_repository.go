package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/modushop/internal/domain/inventory"
	"github.com/Zhima-Mochi/modushop/internal/storage"
)

type InventoryRepository struct {
	db *sql.DB
}

func NewInventoryRepository(db *sql.DB) (*InventoryRepository, error) {
	r := &InventoryRepository{db: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

var _ inventory.Repository = (*InventoryRepository)(nil)

func (r *InventoryRepository) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS stock (
		product_id INTEGER PRIMARY KEY,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		updated_at TEXT NOT NULL
	);`
	_, err := r.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("sqlstore: migrate stock: %w", err)
	}
	return nil
}

func (r *InventoryRepository) EnsureStock(ctx context.Context, tx storage.Tx, productID int64, initialQuantity int) (int, bool, error) {
	if initialQuantity < 0 {
		return 0, false, inventory.ErrInvalidQuantity
	}
	sqlTx, err := Unwrap(tx)
	if err != nil {
		return 0, false, err
	}

	res, err := sqlTx.ExecContext(ctx,
		`INSERT INTO stock (product_id, quantity, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (product_id) DO NOTHING`,
		productID, initialQuantity, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, false, fmt.Errorf("sqlstore: ensure stock %d: %w", productID, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("sqlstore: ensure stock %d: %w", productID, err)
	}
	if inserted > 0 {
		return initialQuantity, true, nil
	}

	var quantity int
	err = sqlTx.QueryRowContext(ctx,
		`SELECT quantity FROM stock WHERE product_id = ?`, productID).Scan(&quantity)
	if err != nil {
		return 0, false, fmt.Errorf("sqlstore: ensure stock %d: %w", productID, err)
	}
	return quantity, false, nil
}

// AddQuantity applies the delta in one guarded statement so the check and
// the write cannot interleave with a concurrent mutation of the same row.
func (r *InventoryRepository) AddQuantity(ctx context.Context, tx storage.Tx, productID int64, delta int) (int, error) {
	sqlTx, err := Unwrap(tx)
	if err != nil {
		return 0, err
	}

	var quantity int
	err = sqlTx.QueryRowContext(ctx,
		`UPDATE stock SET quantity = quantity + ?, updated_at = ?
			WHERE product_id = ? AND quantity + ? >= 0
			RETURNING quantity`,
		delta, time.Now().UTC().Format(timeLayout), productID, delta).Scan(&quantity)
	if err == nil {
		return quantity, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sqlstore: add stock %d: %w", productID, err)
	}

	// The guarded update matched nothing: either the row is missing or the
	// delta would push the quantity negative.
	var exists int
	err = sqlTx.QueryRowContext(ctx,
		`SELECT 1 FROM stock WHERE product_id = ?`, productID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, inventory.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sqlstore: add stock %d: %w", productID, err)
	}
	return 0, inventory.ErrInsufficientStock
}

func (r *InventoryRepository) Get(ctx context.Context, productID int64) (*inventory.Stock, error) {
	var (
		quantity  int
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT quantity, updated_at FROM stock WHERE product_id = ?`, productID).
		Scan(&quantity, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inventory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get stock %d: %w", productID, err)
	}

	updated, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: stock %d updated_at: %w", productID, err)
	}

	return &inventory.Stock{
		ProductID: productID,
		Quantity:  quantity,
		UpdatedAt: updated,
	}, nil
}

func (r *InventoryRepository) ListOutOfStock(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id FROM stock WHERE quantity < 1 ORDER BY product_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list out of stock: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlstore: scan stock id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterate stock ids: %w", err)
	}
	return ids, nil
}
