package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/Zhima-Mochi/modushop/internal/domain/catalog"
	"github.com/Zhima-Mochi/modushop/internal/domain/event"
	"github.com/Zhima-Mochi/modushop/internal/domain/inventory"
	"github.com/Zhima-Mochi/modushop/internal/storage"
)

var ErrForeignTx = errors.New("memory: transaction does not belong to this store")

// state is the whole-store snapshot a transaction works against.
type state struct {
	envelopes     []*event.Envelope
	products      map[int64]*catalog.Product
	nextProductID int64
	stocks        map[int64]*inventory.Stock
}

func newState() *state {
	return &state{
		products:      make(map[int64]*catalog.Product),
		nextProductID: 1,
		stocks:        make(map[int64]*inventory.Stock),
	}
}

func (s *state) clone() *state {
	c := &state{
		envelopes:     make([]*event.Envelope, 0, len(s.envelopes)),
		products:      make(map[int64]*catalog.Product, len(s.products)),
		nextProductID: s.nextProductID,
		stocks:        make(map[int64]*inventory.Stock, len(s.stocks)),
	}
	for _, env := range s.envelopes {
		c.envelopes = append(c.envelopes, cloneEnvelope(env))
	}
	for id, p := range s.products {
		c.products[id] = cloneProduct(p)
	}
	for id, st := range s.stocks {
		c.stocks[id] = cloneStock(st)
	}
	return c
}

// Store holds the shared committed state behind the memory repositories.
// txMu serializes everything that replaces or mutates committed state: open
// transactions and direct completion marks. Without it a commit could swap in
// a snapshot taken before a concurrent mark and silently revert it.
type Store struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// Tx is a whole-store snapshot transaction. Mutations land on the working
// copy and become visible only when the runner swaps it in on commit, so a
// failed operation leaves no partial writes behind.
type Tx struct {
	state *state
	hooks []func(ctx context.Context)
}

func (t *Tx) AfterCommit(fn func(ctx context.Context)) {
	if fn != nil {
		t.hooks = append(t.hooks, fn)
	}
}

func asTx(tx storage.Tx) (*Tx, error) {
	mt, ok := tx.(*Tx)
	if !ok || mt == nil {
		return nil, ErrForeignTx
	}
	return mt, nil
}

// TxRunner serializes transactions over one Store. Each transaction gets a
// copy of the committed state; commit replaces the store state wholesale and
// then fires the after-commit hooks outside any lock, so hooks are free to
// start follow-up transactions.
type TxRunner struct {
	store *Store
}

func NewTxRunner(store *Store) *TxRunner {
	return &TxRunner{store: store}
}

var _ storage.TxRunner = (*TxRunner)(nil)

func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	r.store.txMu.Lock()

	r.store.mu.RLock()
	working := r.store.state.clone()
	r.store.mu.RUnlock()

	tx := &Tx{state: working}
	if err := fn(ctx, tx); err != nil {
		r.store.txMu.Unlock()
		return err
	}

	r.store.mu.Lock()
	r.store.state = working
	r.store.mu.Unlock()
	r.store.txMu.Unlock()

	for _, hook := range tx.hooks {
		hook(ctx)
	}
	return nil
}

func cloneEnvelope(env *event.Envelope) *event.Envelope {
	if env == nil {
		return nil
	}
	c := *env
	c.Payload = append([]byte(nil), env.Payload...)
	if env.CompletedAt != nil {
		at := *env.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

func cloneProduct(p *catalog.Product) *catalog.Product {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func cloneStock(s *inventory.Stock) *inventory.Stock {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
