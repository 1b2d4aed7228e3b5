package googledrive

import (
	"context"
	"fmt"

	"github.com/jun/drivechat/internal/adapter"
	"golang.org/x/oauth2"
)

// Provider implements adapter.StorageProvider for Google Drive.
type Provider struct{}

// NewProvider creates a new Google Drive provider.
func NewProvider() *Provider {
	return &Provider{}
}

// GetAdapter returns a DriveAdapter that authenticates with token.
// Refreshing is the authorization manager's job, so the token source is static.
func (p *Provider) GetAdapter(ctx context.Context, identity string, token *oauth2.Token) (adapter.StorageAdapter, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("no access credential for %s: %w", identity, adapter.ErrUnauthenticated)
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	storage, err := NewDriveAdapter(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive adapter: %w", err)
	}

	return storage, nil
}
