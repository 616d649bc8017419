package workqueue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Queue for tests and single-process runs. It
// models SQS visibility: received messages become invisible for the
// visibility timeout and are redelivered if not deleted in time.
type Memory struct {
	visibility time.Duration
	now        func() time.Time

	mu      sync.Mutex
	nextID  int
	pending []*memoryEntry
}

type memoryEntry struct {
	receipt   string
	message   TaskMessage
	visibleAt time.Time
}

// NewMemory creates an in-memory queue with the given visibility
// timeout (30s if <= 0).
func NewMemory(visibility time.Duration) *Memory {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &Memory{visibility: visibility, now: time.Now}
}

// SetClock overrides the time source, for redelivery tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.now = now
}

// Send enqueues one task message.
func (m *Memory) Send(_ context.Context, msg TaskMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.pending = append(m.pending, &memoryEntry{
		receipt: strconv.Itoa(m.nextID),
		message: msg,
	})
	return nil
}

// Receive returns up to max currently-visible deliveries without
// blocking. Returning an empty slice when nothing is visible matches
// how an expired SQS long poll behaves.
func (m *Memory) Receive(ctx context.Context, max int) ([]Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var deliveries []Delivery
	for _, entry := range m.pending {
		if len(deliveries) >= max {
			break
		}
		if entry.visibleAt.After(now) {
			continue
		}
		entry.visibleAt = now.Add(m.visibility)
		deliveries = append(deliveries, Delivery{
			Message: entry.message,
			Receipt: entry.receipt,
		})
	}
	return deliveries, nil
}

// Delete settles a delivery.
func (m *Memory) Delete(_ context.Context, delivery Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, entry := range m.pending {
		if entry.receipt == delivery.Receipt {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return nil
		}
	}
	// Already deleted; duplicate settles are fine under at-least-once.
	return nil
}

// Len returns the number of unsettled messages, visible or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
