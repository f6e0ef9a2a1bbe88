package quota

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Applier is the slice of Store the Guard needs. It exists so the quota
// policy can be tested against an in-memory store and so the storage backend
// can change without touching the policy.
type Applier interface {
	Apply(ctx context.Context, userID uuid.UUID, decide Decision) error
	Get(ctx context.Context, userID uuid.UUID) (Record, error)
}

// Guard enforces the per-user daily generation allowance. Consume commits
// the increment before the guarded work runs: a downstream failure does not
// refund the unit, so a flaky downstream can never grant unlimited retries.
type Guard struct {
	store Applier
	limit int
	clock Clock
}

func NewGuard(store Applier, limit int, clock Clock) *Guard {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Guard{store: store, limit: limit, clock: clock}
}

// Limit returns the configured daily allowance.
func (g *Guard) Limit() int {
	return g.limit
}

// Consume takes one unit of today's allowance for the user, atomically.
// The calendar day is computed once at entry, in UTC, so a request spanning
// midnight observes a single consistent day. Returns *ExceededError when the
// allowance is spent, *StorageError when the store failed, and a plain error
// for a missing user ID (a caller bug, never a quota verdict).
func (g *Guard) Consume(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("quota: consume called without a user id")
	}

	now := g.clock.Now().UTC()
	today := now.Format(DateLayout)

	return g.store.Apply(ctx, userID, func(rec Record) (Record, error) {
		if rec.LastResetDate != today {
			rec.Count = 0
			rec.LastResetDate = today
		}
		if rec.Count >= g.limit {
			return rec, &ExceededError{Limit: g.limit}
		}
		rec.Count++
		rec.LastUsedAt = now
		return rec, nil
	})
}

// Status reports the user's remaining allowance without consuming anything.
// A record from a previous day reads as unused.
func (g *Guard) Status(ctx context.Context, userID uuid.UUID) (Status, error) {
	if userID == uuid.Nil {
		return Status{}, fmt.Errorf("quota: status requested without a user id")
	}

	rec, err := g.store.Get(ctx, userID)
	if err != nil {
		return Status{}, err
	}

	today := g.clock.Now().UTC().Format(DateLayout)
	used := rec.Count
	if rec.LastResetDate != today {
		used = 0
	}

	remaining := g.limit - used
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		UsedToday:  used,
		DailyLimit: g.limit,
		Remaining:  remaining,
		ResetsOn:   today,
	}, nil
}
