package store

import (
	"context"
	"sync"
	"time"
)

// DedupRepo records inbound message ids so a message redelivered by the
// chat channel after a reconnect is processed once.
type DedupRepo interface {
	// RecordInbound stores the message id and returns false when it was
	// already recorded.
	RecordInbound(ctx context.Context, messageID, conversationID string) (bool, error)
}

// MemoryDedup is an in-process DedupRepo that forgets ids older than ttl.
type MemoryDedup struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDedup creates a MemoryDedup. A non-positive ttl defaults to one hour.
func NewMemoryDedup(ttl time.Duration) *MemoryDedup {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryDedup{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

// RecordInbound implements DedupRepo.
func (d *MemoryDedup) RecordInbound(_ context.Context, messageID, _ string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, id)
		}
	}
	if _, ok := d.seen[messageID]; ok {
		return false, nil
	}
	d.seen[messageID] = now
	return true, nil
}
