// Package store persists authorization records. Every backend writes with
// compare-and-swap on the record version so two refreshes cannot both win.
package store

import (
	"context"
	"errors"

	"github.com/jun/drivechat/internal/model"
)

var (
	// ErrNotFound is returned when no record exists for an identity.
	ErrNotFound = errors.New("authorization record not found")

	// ErrVersionConflict is returned when the stored version is not the one
	// the writer read.
	ErrVersionConflict = errors.New("authorization record version conflict")
)

// Store loads and saves authorization records keyed by identity.
type Store interface {
	// Get returns the record for identity or ErrNotFound.
	Get(ctx context.Context, identity string) (*model.AuthorizationRecord, error)

	// Put writes rec if the stored version equals rec.Version-1
	// (or no record exists and rec.Version is 1).
	Put(ctx context.Context, rec *model.AuthorizationRecord) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, identity string) error
}
