package status

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker keeps statuses in process memory. Everything is lost on restart.
type MemoryTracker struct {
	mu       sync.RWMutex
	statuses map[string]Status
	now      func() time.Time
}

// NewMemoryTracker creates an empty in-memory tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		statuses: make(map[string]Status),
		now:      time.Now,
	}
}

func (m *MemoryTracker) SetPending(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := m.now()
	if existing, ok := m.statuses[id]; ok {
		if existing.State.Terminal() {
			return ErrAlreadyCompleted
		}
		created = existing.CreatedAt
	}
	m.statuses[id] = Status{
		State:        StatePending,
		TransitionID: id,
		CreatedAt:    created,
	}
	return nil
}

func (m *MemoryTracker) MarkReady(_ context.Context, id string) error {
	return m.complete(id, StateReady, "")
}

func (m *MemoryTracker) MarkFailed(_ context.Context, id, message string) error {
	return m.complete(id, StateFailed, message)
}

func (m *MemoryTracker) complete(id string, state State, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var existing *Status
	if s, ok := m.statuses[id]; ok {
		existing = &s
	}
	next, err := complete(existing, id, state, message, m.now())
	if err != nil {
		return err
	}
	m.statuses[id] = *next
	return nil
}

func (m *MemoryTracker) Get(_ context.Context, id string) (*Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.statuses[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryTracker) Cleanup(_ context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for id, s := range m.statuses {
		if s.CreatedAt.Before(cutoff) {
			delete(m.statuses, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked records
func (m *MemoryTracker) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}
