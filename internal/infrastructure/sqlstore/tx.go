package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/modushop/internal/storage"
)

var ErrForeignTx = errors.New("sqlstore: transaction does not belong to this store")

// Tx wraps *sql.Tx with after-commit hooks. Repositories unwrap it to reach
// the underlying transaction; hooks collected during the transaction run
// only once the commit has succeeded.
type Tx struct {
	tx    *sql.Tx
	hooks []func(ctx context.Context)
}

func (t *Tx) AfterCommit(fn func(ctx context.Context)) {
	if fn != nil {
		t.hooks = append(t.hooks, fn)
	}
}

// Unwrap extracts the *sql.Tx from a storage.Tx issued by this package's
// runner. Repositories fail fast on a transaction from another store rather
// than silently writing outside the caller's boundary.
func Unwrap(tx storage.Tx) (*sql.Tx, error) {
	st, ok := tx.(*Tx)
	if !ok || st == nil || st.tx == nil {
		return nil, ErrForeignTx
	}
	return st.tx, nil
}

type TxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

var _ storage.TxRunner = (*TxRunner)(nil)

// RunInTx runs fn inside a database transaction. A non-nil error from fn
// rolls everything back, hooks included. Hooks run after the commit returns,
// outside the transaction, so they can open transactions of their own.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &Tx{tx: sqlTx}
	if err := fn(ctx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("sqlstore: rollback: %w", rbErr))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}
	committed = true

	for _, hook := range tx.hooks {
		hook(ctx)
	}
	return nil
}
