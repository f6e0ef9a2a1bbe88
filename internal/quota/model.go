package quota

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar-day key format for quota resets. Days roll over
// at midnight UTC for every user; see Guard.
const DateLayout = "2006-01-02"

// Record matches the user_quotas table schema: one row per user holding the
// daily generation counter. An absent row is equivalent to the zero Record.
type Record struct {
	UserID        uuid.UUID `json:"user_id"`
	Count         int       `json:"count"`
	LastResetDate string    `json:"last_reset_date"`
	LastUsedAt    time.Time `json:"last_used_at"`
}

// Decision inspects the current record and returns the record to persist.
// It must be pure: the store may call it again on transaction retry.
// Returning an error aborts the transaction with no persisted side effect,
// and the error is returned to the caller as-is.
type Decision func(rec Record) (Record, error)

// ExceededError reports that the user's daily allowance is already consumed.
// It carries the configured limit for user-facing messaging.
type ExceededError struct {
	Limit int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("daily limit of %d prompt generations reached", e.Limit)
}

// IsExceeded reports whether err is a quota verdict rather than a failure.
func IsExceeded(err error) bool {
	var exceeded *ExceededError
	return errors.As(err, &exceeded)
}

// StorageError reports that the quota store failed after exhausting retries.
// It is operator-actionable and must never be conflated with ExceededError:
// the guarded operation is denied, not permitted, when storage is down.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("quota storage: %v", e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Status is the API-facing view of a user's allowance.
type Status struct {
	UsedToday  int    `json:"used_today"`
	DailyLimit int    `json:"daily_limit"`
	Remaining  int    `json:"remaining"`
	ResetsOn   string `json:"resets_on"`
}

// Clock supplies the current time. Injected so tests can simulate day
// rollover deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
