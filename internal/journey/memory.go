package journey

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for testing.
//
// Mutations on a single user are serialized by the store mutex, which
// gives the same lost-update guarantee the SQLite store provides via
// write transactions.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[string]*Record
	snapshots   map[string]*Snapshot
	transitions map[string][]*Transition
	signals     map[string][]*SignalEntry
	jobWindows  map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]*Record),
		snapshots:   make(map[string]*Snapshot),
		transitions: make(map[string][]*Transition),
		signals:     make(map[string][]*SignalEntry),
		jobWindows:  make(map[string]bool),
	}
}

// GetOrCreate returns the user's record, creating the default lazily.
func (s *MemoryStore) GetOrCreate(ctx context.Context, userID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		rec = NewRecord(userID, time.Now())
		s.records[userID] = rec
	}
	return cloneRecord(rec), nil
}

// Get returns the user's record or ErrNotTracked.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrNotTracked
	}
	return cloneRecord(rec), nil
}

// memoryUOW stages writes that commit only if the MutateFunc succeeds.
type memoryUOW struct {
	transitions []*Transition
	signals     []*SignalEntry
	snapshot    *Snapshot
}

func (u *memoryUOW) AppendTransition(t *Transition) error {
	u.transitions = append(u.transitions, t)
	return nil
}

func (u *memoryUOW) AppendSignals(entries []*SignalEntry) error {
	u.signals = append(u.signals, entries...)
	return nil
}

func (u *memoryUOW) UpsertSnapshot(snap *Snapshot) error {
	u.snapshot = snap
	return nil
}

// Mutate runs fn against a copy of the record and commits the copy plus
// any staged audit writes atomically under the store lock.
func (s *MemoryStore) Mutate(ctx context.Context, userID string, fn MutateFunc) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		rec = NewRecord(userID, time.Now())
	}

	working := cloneRecord(rec)
	uow := &memoryUOW{}
	if err := fn(working, uow); err != nil {
		return nil, err
	}

	working.UpdatedAt = time.Now()
	s.records[userID] = working
	s.transitions[userID] = append(s.transitions[userID], uow.transitions...)
	s.signals[userID] = append(s.signals[userID], uow.signals...)
	if uow.snapshot != nil {
		s.snapshots[userID] = uow.snapshot
	}
	return cloneRecord(working), nil
}

// Snapshot returns the user's cache snapshot or ErrNotTracked.
func (s *MemoryStore) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[userID]
	if !ok {
		return nil, ErrNotTracked
	}
	c := *snap
	return &c, nil
}

// Transitions returns the user's transition log, newest first.
func (s *MemoryStore) Transitions(ctx context.Context, userID string, limit int) ([]*Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.transitions[userID]
	out := make([]*Transition, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SignalEntries returns the user's signal log, newest first.
func (s *MemoryStore) SignalEntries(ctx context.Context, userID string, limit int) ([]*SignalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.signals[userID]
	out := make([]*SignalEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Users pages through tracked user IDs in stable order.
func (s *MemoryStore) Users(ctx context.Context, offset, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// ClaimJobWindow claims a (job, window) pair, returning false if taken.
func (s *MemoryStore) ClaimJobWindow(ctx context.Context, job, window string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := job + "|" + window
	if s.jobWindows[key] {
		return false, nil
	}
	s.jobWindows[key] = true
	return true, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// ForceSnapshot overwrites the cache snapshot directly, bypassing the
// unit of work. Tests use it to simulate drift for sweep repair.
func (s *MemoryStore) ForceSnapshot(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.UserID] = snap
}

func cloneRecord(rec *Record) *Record {
	c := *rec
	if rec.AgencySignals != nil {
		c.AgencySignals = make(map[string]float64, len(rec.AgencySignals))
		for k, v := range rec.AgencySignals {
			c.AgencySignals[k] = v
		}
	}
	if rec.TrustSignals != nil {
		c.TrustSignals = make(map[string]float64, len(rec.TrustSignals))
		for k, v := range rec.TrustSignals {
			c.TrustSignals[k] = v
		}
	}
	if rec.CoachOverride != nil {
		o := *rec.CoachOverride
		c.CoachOverride = &o
	}
	if rec.StabilityStart != nil {
		t := *rec.StabilityStart
		c.StabilityStart = &t
	}
	if rec.GraduatedAt != nil {
		t := *rec.GraduatedAt
		c.GraduatedAt = &t
	}
	return &c
}
