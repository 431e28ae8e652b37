package invoicing

import (
	"context"
	"time"
)

// ContactLock is an advisory lock keyed by tax number. It serializes contact
// resolution so concurrent workflows for the same counterparty cannot race a
// find-then-create into duplicate remote contacts. The lock is best effort;
// holders that crash are released by the TTL.
type ContactLock interface {
	// Acquire takes the lock for taxNumber. Returns false when another holder
	// has it.
	Acquire(ctx context.Context, taxNumber string, ttl time.Duration) (bool, error)

	// Release frees the lock. Releasing an unheld lock is a no-op.
	Release(ctx context.Context, taxNumber string) error
}
