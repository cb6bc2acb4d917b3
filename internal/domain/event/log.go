package event

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Zhima-Mochi/modushop/internal/storage"
)

// Log is the durable, append-only store of envelopes. It shares the durable
// store with the business data it is transactionally coupled to.
//
// Storage errors surface to the caller uninterpreted; the log never retries.
type Log interface {
	// Append inserts all envelopes as part of the caller's active
	// transaction. It must not open its own transaction boundary.
	Append(ctx context.Context, tx storage.Tx, envelopes []*Envelope) error

	// MarkComplete stamps the envelope's completion time. Idempotent: a
	// second call for an already-completed envelope is a no-op.
	MarkComplete(ctx context.Context, id uuid.UUID, completedAt time.Time) error

	// FindIncomplete returns all pending envelopes, oldest first, to bias
	// retry toward FIFO delivery.
	FindIncomplete(ctx context.Context) ([]*Envelope, error)

	// FindAll returns every envelope in insertion order, for audit and
	// deterministic test assertions.
	FindAll(ctx context.Context) ([]*Envelope, error)
}
