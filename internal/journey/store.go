package journey

import (
	"context"
	"time"
)

// UnitOfWork exposes the writes that must commit atomically with a
// record mutation. Implementations bind these to the same transaction
// that persists the mutated record; a cache snapshot written through
// UpsertSnapshot is therefore never observable without the record change
// it reflects.
type UnitOfWork interface {
	// AppendTransition appends to the immutable transition log.
	AppendTransition(t *Transition) error

	// AppendSignals appends to the immutable signal log.
	AppendSignals(entries []*SignalEntry) error

	// UpsertSnapshot replaces the user's cache snapshot.
	UpsertSnapshot(s *Snapshot) error
}

// MutateFunc mutates a record inside a unit of work. Returning an error
// rolls the whole unit back, including any appended audit entries.
type MutateFunc func(rec *Record, uow UnitOfWork) error

// Store is the persistence contract for journey state.
//
// Mutate serializes concurrent read-modify-write cycles on the same
// user: the record is loaded and saved inside a single write
// transaction, so the nightly stability job and an interactive
// interruption report cannot lose updates to each other.
type Store interface {
	// GetOrCreate returns the user's record, lazily creating the default
	// record (stage S0, zeroed scores) on first access.
	GetOrCreate(ctx context.Context, userID string) (*Record, error)

	// Get returns the user's record or ErrNotTracked.
	Get(ctx context.Context, userID string) (*Record, error)

	// Mutate runs fn against the user's record (lazily created) inside a
	// write transaction and persists the result. The returned record is
	// the committed state.
	Mutate(ctx context.Context, userID string, fn MutateFunc) (*Record, error)

	// Snapshot returns the user's cache snapshot or ErrNotTracked.
	Snapshot(ctx context.Context, userID string) (*Snapshot, error)

	// Transitions returns the user's transition log, newest first.
	Transitions(ctx context.Context, userID string, limit int) ([]*Transition, error)

	// SignalEntries returns the user's signal log, newest first.
	SignalEntries(ctx context.Context, userID string, limit int) ([]*SignalEntry, error)

	// Users pages through tracked user IDs for batch sweeps.
	Users(ctx context.Context, offset, limit int) ([]string, error)

	// ClaimJobWindow records that the named batch job ran for the given
	// window (a calendar date). It returns false when the window was
	// already claimed, making duplicate job invocations no-ops.
	ClaimJobWindow(ctx context.Context, job, window string) (bool, error)

	// Close releases store resources.
	Close() error
}

// DayKey formats a time as the calendar-day key used for stability
// counting and batch job windows.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
