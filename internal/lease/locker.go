// Package lease provides short exclusive claims on a key so only one
// instance refreshes an identity's credential at a time.
package lease

import (
	"context"
	"errors"
	"time"

	"github.com/jun/drivechat/internal/model"
)

const DefaultTTL = 30 * time.Second

// ErrHeld is returned when another owner holds an unexpired lease.
var ErrHeld = errors.New("lease is held by another owner")

// Locker defines the interface for lease management.
type Locker interface {
	// Acquire claims key for owner. It succeeds if no lease exists, the
	// existing one has expired, or owner already holds it.
	Acquire(ctx context.Context, key, owner string) (*model.Lease, error)

	// Release drops the lease if owner holds it.
	Release(ctx context.Context, key, owner string) error
}

// AcquireWait retries Acquire until it succeeds, ctx ends, or the lease
// is still held after wait.
func AcquireWait(ctx context.Context, l Locker, key, owner string, wait time.Duration) (*model.Lease, error) {
	deadline := time.Now().Add(wait)
	backoff := 50 * time.Millisecond
	for {
		ls, err := l.Acquire(ctx, key, owner)
		if err == nil || !errors.Is(err, ErrHeld) || time.Now().After(deadline) {
			return ls, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 400*time.Millisecond {
			backoff *= 2
		}
	}
}
