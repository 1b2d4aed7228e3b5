package store

import (
	"context"
	"sync"

	"github.com/jun/drivechat/internal/model"
)

// MemoryStore keeps records in process. Used in dev mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.AuthorizationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.AuthorizationRecord)}
}

func (s *MemoryStore) Get(ctx context.Context, identity string) (*model.AuthorizationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[identity]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *model.AuthorizationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.Identity]
	switch {
	case !ok && rec.Version != 1:
		return ErrVersionConflict
	case ok && cur.Version != rec.Version-1:
		return ErrVersionConflict
	}
	s.records[rec.Identity] = *rec
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identity)
	return nil
}
