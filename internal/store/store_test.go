package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jun/drivechat/internal/model"
)

// exercise runs the same contract against any backend.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "whatsapp:+1555"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	rec := &model.AuthorizationRecord{
		Identity:     "whatsapp:+1555",
		Status:       model.StatusPending,
		PendingNonce: "nonce-1",
		Version:      1,
		UpdatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}

	// Second create at version 1 must lose.
	if err := s.Put(ctx, rec); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("Expected ErrVersionConflict on duplicate create, got %v", err)
	}

	got, err := s.Get(ctx, rec.Identity)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != model.StatusPending || got.PendingNonce != "nonce-1" || got.Version != 1 {
		t.Errorf("Unexpected record: %+v", got)
	}

	next := *got
	next.Status = model.StatusAuthorized
	next.PendingNonce = ""
	next.EncryptedRefreshToken = "enc-refresh"
	next.Expiry = time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	next.Version = 2
	if err := s.Put(ctx, &next); err != nil {
		t.Fatalf("update Put failed: %v", err)
	}

	stale := *got
	stale.Version = 2
	if err := s.Put(ctx, &stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("Expected ErrVersionConflict on stale write, got %v", err)
	}

	got, _ = s.Get(ctx, rec.Identity)
	if got.Status != model.StatusAuthorized || got.EncryptedRefreshToken != "enc-refresh" {
		t.Errorf("Expected authorized record, got %+v", got)
	}
	if !got.Expiry.Equal(next.Expiry) {
		t.Errorf("Expiry mismatch: got %v, want %v", got.Expiry, next.Expiry)
	}

	if err := s.Delete(ctx, rec.Identity); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, rec.Identity); err != nil {
		t.Fatalf("Delete of missing record should succeed: %v", err)
	}
	if _, err := s.Get(ctx, rec.Identity); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tokens.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()
	exercise(t, s)
}

func TestDynamoStore(t *testing.T) {
	exercise(t, NewDynamoStore(newFakeDynamo(), "drivechat-auth"))
}

func TestMemoryStore_CreateRequiresVersionOne(t *testing.T) {
	s := NewMemoryStore()
	err := s.Put(context.Background(), &model.AuthorizationRecord{Identity: "x", Version: 3})
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict, got %v", err)
	}
}
