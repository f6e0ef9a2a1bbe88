package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store uses, narrowed so the retry
// loop can be driven by a fake in unit tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists quota Records in the user_quotas PostgreSQL table and
// applies Decisions to them atomically. The row lock taken by
// SELECT ... FOR UPDATE serializes concurrent updates for the same user
// without blocking updates for other users.
type Store struct {
	db          DB
	maxAttempts int
}

// NewStore creates a Store that retries transient transaction failures up to
// maxAttempts times before giving up with a StorageError.
func NewStore(db DB, maxAttempts int) *Store {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Store{db: db, maxAttempts: maxAttempts}
}

// Apply runs decide against the user's current record inside a single
// transaction and persists the result. If decide returns an error, the
// transaction rolls back, nothing is persisted, and that error is returned
// unchanged. Transient storage failures are retried with backoff; because a
// failed attempt commits nothing, a retried Apply still increments at most
// once. Exhausting retries returns a *StorageError.
func (s *Store) Apply(ctx context.Context, userID uuid.UUID, decide Decision) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.applyOnce(ctx, userID, decide)
		if err == nil {
			return nil
		}

		// Decision aborts are final: no side effect happened and retrying
		// would re-reach the same verdict.
		var txErr *txError
		if !errors.As(err, &txErr) {
			return err
		}
		lastErr = txErr.err

		if !retryable(txErr.err) || attempt == s.maxAttempts {
			break
		}

		slog.Warn("quota store: retrying transaction",
			"user_id", userID, "attempt", attempt, "error", txErr.err)
		if err := sleepBackoff(ctx, attempt); err != nil {
			lastErr = err
			break
		}
	}
	return &StorageError{Err: lastErr}
}

// txError marks failures of the storage machinery, as opposed to errors
// returned by the Decision itself.
type txError struct {
	err error
}

func (e *txError) Error() string { return e.err.Error() }

func (s *Store) applyOnce(ctx context.Context, userID uuid.UUID, decide Decision) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return &txError{fmt.Errorf("beginning transaction: %w", err)}
	}
	defer tx.Rollback(ctx)

	// Lazy row creation: first consumption for a user inserts the zero record.
	_, err = tx.Exec(ctx,
		`INSERT INTO user_quotas (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return &txError{fmt.Errorf("ensuring quota row: %w", err)}
	}

	// last_used_at is NULL until the first consumption.
	var rec Record
	var lastUsed *time.Time
	err = tx.QueryRow(ctx,
		`SELECT user_id, count, last_reset_date, last_used_at
		 FROM user_quotas WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&rec.UserID, &rec.Count, &rec.LastResetDate, &lastUsed)
	if err != nil {
		return &txError{fmt.Errorf("locking quota row: %w", err)}
	}
	if lastUsed != nil {
		rec.LastUsedAt = *lastUsed
	}

	next, err := decide(rec)
	if err != nil {
		// Abort: the deferred rollback discards the row lock with no write.
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE user_quotas
		 SET count = $2, last_reset_date = $3, last_used_at = $4, updated_at = NOW()
		 WHERE user_id = $1`,
		userID, next.Count, next.LastResetDate, next.LastUsedAt)
	if err != nil {
		return &txError{fmt.Errorf("persisting quota row: %w", err)}
	}

	if err := tx.Commit(ctx); err != nil {
		return &txError{fmt.Errorf("committing quota update: %w", err)}
	}
	return nil
}

// Get returns the user's current record without locking. Absent rows read as
// the zero record.
func (s *Store) Get(ctx context.Context, userID uuid.UUID) (Record, error) {
	var rec Record
	var lastUsed *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT user_id, count, last_reset_date, last_used_at
		 FROM user_quotas WHERE user_id = $1`, userID,
	).Scan(&rec.UserID, &rec.Count, &rec.LastResetDate, &lastUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{UserID: userID}, nil
		}
		return Record{}, &StorageError{Err: fmt.Errorf("reading quota row: %w", err)}
	}
	if lastUsed != nil {
		rec.LastUsedAt = *lastUsed
	}
	return rec, nil
}

// retryable reports whether a storage failure is worth another attempt:
// serialization failures, deadlocks, and connection-class errors.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return pgconn.SafeToRetry(err)
}

func sleepBackoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt) * 50 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
