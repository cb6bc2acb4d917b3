package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Zhima-Mochi/modushop/internal/domain/event"
	"github.com/Zhima-Mochi/modushop/internal/storage"
)

type EventLog struct {
	store *Store
}

func NewEventLog(store *Store) *EventLog {
	return &EventLog{store: store}
}

var _ event.Log = (*EventLog)(nil)

func (l *EventLog) Append(ctx context.Context, tx storage.Tx, envelopes []*event.Envelope) error {
	_ = ctx

	mt, err := asTx(tx)
	if err != nil {
		return err
	}
	for _, env := range envelopes {
		mt.state.envelopes = append(mt.state.envelopes, cloneEnvelope(env))
	}
	return nil
}

// MarkComplete stamps the completion time once; a repeat call is a no-op.
// It takes the transaction mutex so the mark cannot land between a
// transaction's snapshot and its commit, where the state swap would erase it.
func (l *EventLog) MarkComplete(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	_ = ctx

	l.store.txMu.Lock()
	defer l.store.txMu.Unlock()

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	for _, env := range l.store.state.envelopes {
		if env.ID == id && env.CompletedAt == nil {
			at := completedAt
			env.CompletedAt = &at
			return nil
		}
	}
	return nil
}

func (l *EventLog) FindIncomplete(ctx context.Context) ([]*event.Envelope, error) {
	_ = ctx

	l.store.mu.RLock()
	defer l.store.mu.RUnlock()

	var pending []*event.Envelope
	for _, env := range l.store.state.envelopes {
		if env.CompletedAt == nil {
			pending = append(pending, cloneEnvelope(env))
		}
	}
	return pending, nil
}

func (l *EventLog) FindAll(ctx context.Context) ([]*event.Envelope, error) {
	_ = ctx

	l.store.mu.RLock()
	defer l.store.mu.RUnlock()

	all := make([]*event.Envelope, 0, len(l.store.state.envelopes))
	for _, env := range l.store.state.envelopes {
		all = append(all, cloneEnvelope(env))
	}
	return all, nil
}
