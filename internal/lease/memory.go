package lease

import (
	"context"
	"sync"
	"time"

	"github.com/jun/drivechat/internal/model"
)

// MemoryLocker implements Locker using an in-memory map. It only
// coordinates goroutines of one process.
type MemoryLocker struct {
	leases      map[string]model.Lease
	mu          sync.Mutex
	ttlDuration time.Duration
	now         func() time.Time
}

// NewMemoryLocker creates a new MemoryLocker with the default TTL.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		leases:      make(map[string]model.Lease),
		ttlDuration: DefaultTTL,
		now:         time.Now,
	}
}

func (m *MemoryLocker) Acquire(ctx context.Context, key, owner string) (*model.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().Unix()
	if existing, ok := m.leases[key]; ok {
		if existing.ExpiresAt > now && existing.Owner != owner {
			return nil, ErrHeld
		}
	}

	ls := model.Lease{
		Key:       key,
		Owner:     owner,
		ExpiresAt: now + int64(m.ttlDuration.Seconds()),
	}
	m.leases[key] = ls
	return &ls, nil
}

func (m *MemoryLocker) Release(ctx context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.leases[key]; ok && existing.Owner == owner {
		delete(m.leases, key)
	}
	return nil
}
