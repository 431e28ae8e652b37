package cache

import (
	"context"
	"sync"
	"time"

	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
)

// lockEntry represents a held lock with expiration
type lockEntry struct {
	expiresAt time.Time
}

// InMemoryContactLock implements ContactLock using an in-memory map
// This is suitable for single-instance deployments and testing
type InMemoryContactLock struct {
	mu      sync.Mutex
	entries map[string]lockEntry
}

// NewInMemoryContactLock creates a new in-memory contact lock
func NewInMemoryContactLock() *InMemoryContactLock {
	return &InMemoryContactLock{
		entries: make(map[string]lockEntry),
	}
}

// Acquire takes the lock for a tax number
// Returns true if the lock was taken, false if another holder has it
// Expired entries are treated as free and overwritten
func (l *InMemoryContactLock) Acquire(ctx context.Context, taxNumber string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, exists := l.entries[taxNumber]; exists {
		if time.Now().Before(e.expiresAt) {
			return false, nil
		}
	}

	l.entries[taxNumber] = lockEntry{
		expiresAt: time.Now().Add(ttl),
	}
	return true, nil
}

// Release frees the lock for a tax number
func (l *InMemoryContactLock) Release(ctx context.Context, taxNumber string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, taxNumber)
	return nil
}

// Size returns the number of held locks (for testing/monitoring)
func (l *InMemoryContactLock) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Ensure InMemoryContactLock implements ContactLock
var _ invoicing.ContactLock = (*InMemoryContactLock)(nil)
