package adapter

import (
	"context"

	"golang.org/x/oauth2"
)

// StorageProvider defines how to get a StorageAdapter for a specific user.
type StorageProvider interface {
	// GetAdapter returns a StorageAdapter acting with the given credential.
	// The credential is expected to be valid; callers obtain it from the
	// authorization manager.
	GetAdapter(ctx context.Context, identity string, token *oauth2.Token) (StorageAdapter, error)
}
