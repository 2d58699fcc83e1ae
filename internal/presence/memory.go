package presence

import (
	"context"
	"sync"
	"time"

	"github.com/swapnest/chat-engine/internal/broker"
)

// MemoryTracker is an in-process Tracker for tests and single-node
// development.
type MemoryTracker struct {
	mu      sync.Mutex
	records map[int64]*Record
	broker  broker.Broker

	now func() time.Time
}

// NewMemoryTracker creates an empty MemoryTracker. Transitions are
// broadcast via b; pass nil to disable broadcasting.
func NewMemoryTracker(b broker.Broker) *MemoryTracker {
	return &MemoryTracker{
		records: make(map[int64]*Record),
		broker:  b,
		now:     time.Now,
	}
}

// SetOnline implements Tracker.
func (t *MemoryTracker) SetOnline(ctx context.Context, userID int64) error {
	return t.set(userID, true)
}

// SetOffline implements Tracker.
func (t *MemoryTracker) SetOffline(ctx context.Context, userID int64) error {
	return t.set(userID, false)
}

func (t *MemoryTracker) set(userID int64, online bool) error {
	t.mu.Lock()
	rec, ok := t.records[userID]
	if !ok {
		rec = &Record{UserID: userID}
		t.records[userID] = rec
	}
	rec.IsOnline = online
	if now := t.now(); now.After(rec.LastSeen) {
		rec.LastSeen = now
	}
	lastSeen := rec.LastSeen
	t.mu.Unlock()

	publish(t.broker, userID, online, lastSeen)
	return nil
}

// Get implements Tracker.
func (t *MemoryTracker) Get(_ context.Context, userID int64) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[userID]
	if !ok {
		return nil, ErrNotTracked
	}
	cp := *rec
	return &cp, nil
}
