package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/modushop/internal/domain/event"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/sqlstore"
	"github.com/Zhima-Mochi/modushop/internal/storage"
)

func newTestEnvelope(t *testing.T, eventType, listenerID string) []*event.Envelope {
	t.Helper()
	env, err := event.NewEnvelope(eventType, listenerID, []byte(`{"value":1}`))
	require.NoError(t, err)
	return []*event.Envelope{env}
}

func TestEventLogRoundTrip(t *testing.T) {
	db := openTestDB(t)
	log, err := sqlstore.NewEventLog(db)
	require.NoError(t, err)
	runner := sqlstore.NewTxRunner(db)

	envs := newTestEnvelope(t, "some.event", "listener-a")
	err = runner.RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return log.Append(ctx, tx, envs)
	})
	require.NoError(t, err)

	pending, err := log.FindIncomplete(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, envs[0].ID, pending[0].ID)
	assert.Equal(t, "some.event", pending[0].EventType)
	assert.Equal(t, "listener-a", pending[0].ListenerID)
	assert.JSONEq(t, `{"value":1}`, string(pending[0].Payload))
	assert.Nil(t, pending[0].CompletedAt)
	assert.WithinDuration(t, envs[0].PublishedAt, pending[0].PublishedAt, time.Millisecond)
}

func TestEventLogMarkCompleteIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	log, err := sqlstore.NewEventLog(db)
	require.NoError(t, err)
	runner := sqlstore.NewTxRunner(db)

	envs := newTestEnvelope(t, "some.event", "listener-a")
	err = runner.RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return log.Append(ctx, tx, envs)
	})
	require.NoError(t, err)

	first := time.Now().UTC()
	require.NoError(t, log.MarkComplete(context.Background(), envs[0].ID, first))
	// A later mark must not move the stamp.
	require.NoError(t, log.MarkComplete(context.Background(), envs[0].ID, first.Add(time.Hour)))

	all, err := log.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].CompletedAt)
	assert.WithinDuration(t, first, *all[0].CompletedAt, time.Millisecond)

	pending, err := log.FindIncomplete(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEventLogFindIncompleteOldestFirst(t *testing.T) {
	db := openTestDB(t)
	log, err := sqlstore.NewEventLog(db)
	require.NoError(t, err)
	runner := sqlstore.NewTxRunner(db)

	older, err := event.NewEnvelope("some.event", "listener-a", []byte(`{"n":1}`))
	require.NoError(t, err)
	older.PublishedAt = time.Now().UTC().Add(-time.Hour)
	newer, err := event.NewEnvelope("some.event", "listener-a", []byte(`{"n":2}`))
	require.NoError(t, err)

	err = runner.RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return log.Append(ctx, tx, []*event.Envelope{newer, older})
	})
	require.NoError(t, err)

	pending, err := log.FindIncomplete(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID)
	assert.Equal(t, newer.ID, pending[1].ID)
}

func TestEventLogFindIncompleteOrdersSubsecondTimestamps(t *testing.T) {
	db := openTestDB(t)
	log, err := sqlstore.NewEventLog(db)
	require.NoError(t, err)
	runner := sqlstore.NewTxRunner(db)

	// A whole-second timestamp must sort before a later sub-second one even
	// though "...05Z" sorts after "...05.5Z" as text when nanoseconds are
	// trimmed.
	base := time.Date(2026, 8, 29, 10, 0, 5, 0, time.UTC)
	wholeSecond, err := event.NewEnvelope("some.event", "listener-a", []byte(`{"n":1}`))
	require.NoError(t, err)
	wholeSecond.PublishedAt = base
	subSecond, err := event.NewEnvelope("some.event", "listener-a", []byte(`{"n":2}`))
	require.NoError(t, err)
	subSecond.PublishedAt = base.Add(500 * time.Millisecond)

	err = runner.RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return log.Append(ctx, tx, []*event.Envelope{subSecond, wholeSecond})
	})
	require.NoError(t, err)

	pending, err := log.FindIncomplete(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, wholeSecond.ID, pending[0].ID)
	assert.Equal(t, subSecond.ID, pending[1].ID)
}

func TestEventLogSurvivesReopen(t *testing.T) {
	dir := t.TempDir() + "/relog.db"
	db, err := sqlstore.Open(dir)
	require.NoError(t, err)
	log, err := sqlstore.NewEventLog(db)
	require.NoError(t, err)

	envs := newTestEnvelope(t, "some.event", "listener-a")
	err = sqlstore.NewTxRunner(db).RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return log.Append(ctx, tx, envs)
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = sqlstore.Open(dir)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	log, err = sqlstore.NewEventLog(db)
	require.NoError(t, err)

	pending, err := log.FindIncomplete(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, envs[0].ID, pending[0].ID)
}

func TestEventLogMarkCompleteStorageError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	log, err := sqlstore.NewEventLog(db)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE event_envelopes").WillReturnError(assert.AnError)

	err = log.MarkComplete(context.Background(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventLogRejectsCorruptTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	log, err := sqlstore.NewEventLog(db)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "event_type", "payload", "listener_id", "published_at", "completed_at"}).
		AddRow(uuid.NewString(), "some.event", `{"n":1}`, "listener-a", "not-a-timestamp", nil)
	mock.ExpectQuery("SELECT .+ FROM event_envelopes").WillReturnRows(rows)

	_, err = log.FindIncomplete(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "published_at")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventLogFindIncompleteStorageError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	log, err := sqlstore.NewEventLog(db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .+ FROM event_envelopes").WillReturnError(assert.AnError)

	_, err = log.FindIncomplete(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
