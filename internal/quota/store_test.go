package quota

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB drives Store.Apply without a server. Begin fails failBegins times
// before handing out transactions backed by an in-memory record, so the
// retry loop can be observed end to end.
type fakeDB struct {
	rec        Record
	failBegins int
	beginErr   error
	begins     int
	commits    int
}

func (d *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	d.begins++
	if d.begins <= d.failBegins {
		if d.beginErr != nil {
			return nil, d.beginErr
		}
		return nil, &pgconn.PgError{Code: "40001"}
	}
	return &fakeTx{db: d}, nil
}

func (d *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{rec: d.rec}
}

// fakeTx embeds pgx.Tx for the methods the store never calls.
type fakeTx struct {
	pgx.Tx
	db      *fakeDB
	pending *Record
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if strings.HasPrefix(strings.TrimSpace(sql), "UPDATE") {
		t.pending = &Record{
			UserID:        args[0].(uuid.UUID),
			Count:         args[1].(int),
			LastResetDate: args[2].(string),
			LastUsedAt:    args[3].(time.Time),
		}
	}
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{rec: t.db.rec}
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.pending != nil {
		t.db.rec = *t.pending
	}
	t.db.commits++
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeRow struct{ rec Record }

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*uuid.UUID)) = r.rec.UserID
	*(dest[1].(*int)) = r.rec.Count
	*(dest[2].(*string)) = r.rec.LastResetDate
	if !r.rec.LastUsedAt.IsZero() {
		lastUsed := r.rec.LastUsedAt
		*(dest[3].(**time.Time)) = &lastUsed
	}
	return nil
}

func TestApply_TransientFailuresThenSuccess(t *testing.T) {
	userID := uuid.New()
	db := &fakeDB{
		rec:        Record{UserID: userID, Count: 2, LastResetDate: "2025-03-10"},
		failBegins: 2,
	}
	store := NewStore(db, 3)

	err := store.Apply(context.Background(), userID, func(rec Record) (Record, error) {
		rec.Count++
		return rec, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, db.begins, "two failed attempts plus the successful one")
	assert.Equal(t, 1, db.commits, "only the final attempt commits")
	assert.Equal(t, 3, db.rec.Count, "increment lands exactly once")
}

func TestApply_RetriesExhaustedReturnStorageError(t *testing.T) {
	db := &fakeDB{failBegins: 10}
	store := NewStore(db, 3)

	err := store.Apply(context.Background(), uuid.New(), func(rec Record) (Record, error) {
		rec.Count++
		return rec, nil
	})

	var storage *StorageError
	require.ErrorAs(t, err, &storage)
	assert.Equal(t, 3, db.begins)
	assert.Zero(t, db.commits)
}

func TestApply_NonRetryableFailureIsNotRetried(t *testing.T) {
	db := &fakeDB{failBegins: 1, beginErr: errors.New("relation does not exist")}
	store := NewStore(db, 3)

	err := store.Apply(context.Background(), uuid.New(), func(rec Record) (Record, error) {
		return rec, nil
	})

	var storage *StorageError
	require.ErrorAs(t, err, &storage)
	assert.Equal(t, 1, db.begins)
	assert.Zero(t, db.commits)
}

func TestApply_DecisionAbortIsFinal(t *testing.T) {
	userID := uuid.New()
	db := &fakeDB{rec: Record{UserID: userID, Count: 5, LastResetDate: "2025-03-10"}}
	store := NewStore(db, 3)

	sentinel := &ExceededError{Limit: 5}
	err := store.Apply(context.Background(), userID, func(rec Record) (Record, error) {
		return rec, sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, db.begins, "a verdict is never retried")
	assert.Zero(t, db.commits)
	assert.Equal(t, 5, db.rec.Count)
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock detected", &pgconn.PgError{Code: "40P01"}, true},
		{"connection failure class", &pgconn.PgError{Code: "08006"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, retryable(tc.err))
		})
	}
}

func TestSleepBackoff_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepBackoff(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
