package diffcache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache for tests and single-process runs.
// Expired entries are dropped lazily on read.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[Key]Diff
}

// NewMemory creates an in-memory cache with the given TTL
// (DefaultTTL if ttl <= 0).
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Key]Diff),
	}
}

// SetClock overrides the time source, for expiry tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.now = now
}

// Get returns the diff for key if present and unexpired.
func (m *Memory) Get(_ context.Context, key Key) (Diff, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	diff, ok := m.entries[key]
	if !ok {
		return Diff{}, false, nil
	}
	if m.now().Sub(diff.ComputedAt) > m.ttl {
		delete(m.entries, key)
		return Diff{}, false, nil
	}
	return diff, true, nil
}

// Put stores the diff for key, last writer wins.
func (m *Memory) Put(_ context.Context, key Key, diff Diff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = diff
	return nil
}

// Len returns the number of stored entries, including expired ones not
// yet dropped.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
