package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Zhima-Mochi/modushop/internal/domain/event"
	"github.com/Zhima-Mochi/modushop/internal/storage"
)

type EventLog struct {
	db *sql.DB
}

func NewEventLog(db *sql.DB) (*EventLog, error) {
	l := &EventLog{db: db}
	if err := l.migrate(); err != nil {
		return nil, err
	}
	return l, nil
}

var _ event.Log = (*EventLog)(nil)

func (l *EventLog) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS event_envelopes (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		listener_id TEXT NOT NULL,
		published_at TEXT NOT NULL,
		completed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_event_envelopes_pending
		ON event_envelopes (published_at) WHERE completed_at IS NULL;`
	_, err := l.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("sqlstore: migrate event_envelopes: %w", err)
	}
	return nil
}

// timeLayout pads nanoseconds to nine digits so stored timestamps sort
// chronologically as text. RFC3339Nano trims trailing zeros, which puts a
// whole second after any sub-second value in a lexicographic ORDER BY.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (l *EventLog) Append(ctx context.Context, tx storage.Tx, envelopes []*event.Envelope) error {
	sqlTx, err := Unwrap(tx)
	if err != nil {
		return err
	}

	query := `INSERT INTO event_envelopes (id, event_type, payload, listener_id, published_at, completed_at)
		VALUES (?, ?, ?, ?, ?, NULL)`
	for _, env := range envelopes {
		_, err := sqlTx.ExecContext(ctx, query,
			env.ID.String(),
			env.EventType,
			string(env.Payload),
			env.ListenerID,
			env.PublishedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("sqlstore: insert envelope %s: %w", env.ID, err)
		}
	}
	return nil
}

// MarkComplete stamps the completion time. The completed_at IS NULL guard
// makes a repeat call a no-op, and never moves an existing stamp.
func (l *EventLog) MarkComplete(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	query := `UPDATE event_envelopes SET completed_at = ? WHERE id = ? AND completed_at IS NULL`
	_, err := l.db.ExecContext(ctx, query,
		completedAt.UTC().Format(timeLayout),
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: mark envelope %s complete: %w", id, err)
	}
	return nil
}

func (l *EventLog) FindIncomplete(ctx context.Context) ([]*event.Envelope, error) {
	query := `SELECT id, event_type, payload, listener_id, published_at, completed_at
		FROM event_envelopes
		WHERE completed_at IS NULL
		ORDER BY published_at ASC, id ASC`
	return l.query(ctx, query)
}

func (l *EventLog) FindAll(ctx context.Context) ([]*event.Envelope, error) {
	query := `SELECT id, event_type, payload, listener_id, published_at, completed_at
		FROM event_envelopes
		ORDER BY published_at ASC, id ASC`
	return l.query(ctx, query)
}

func (l *EventLog) query(ctx context.Context, query string, args ...any) ([]*event.Envelope, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query envelopes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var envelopes []*event.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterate envelopes: %w", err)
	}
	return envelopes, nil
}

func scanEnvelope(rows *sql.Rows) (*event.Envelope, error) {
	var (
		id          string
		eventType   string
		payload     string
		listenerID  string
		publishedAt string
		completedAt sql.NullString
	)
	if err := rows.Scan(&id, &eventType, &payload, &listenerID, &publishedAt, &completedAt); err != nil {
		return nil, fmt.Errorf("sqlstore: scan envelope: %w", err)
	}

	envID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: envelope id %q: %w", id, err)
	}

	published, err := parseTime(publishedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: envelope %s published_at: %w", id, err)
	}

	env := &event.Envelope{
		ID:          envID,
		EventType:   eventType,
		Payload:     []byte(payload),
		ListenerID:  listenerID,
		PublishedAt: published,
	}
	if completedAt.Valid && completedAt.String != "" {
		at, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: envelope %s completed_at: %w", id, err)
		}
		env.CompletedAt = &at
	}
	return env, nil
}

func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", value, err)
	}
	return t, nil
}
