package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jun/drivechat/internal/adapter"
	"github.com/jun/drivechat/internal/command"
)

// DefaultMaxMediaBytes caps a single attachment.
const DefaultMaxMediaBytes = 16 << 20

// HTTPMediaFetcher downloads attachments from the transport's media URLs,
// authenticating with the account credentials.
type HTTPMediaFetcher struct {
	client   *http.Client
	user     string
	password string
	maxBytes int64
}

func NewHTTPMediaFetcher(user, password string, timeout time.Duration, maxBytes int64) *HTTPMediaFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMediaBytes
	}
	return &HTTPMediaFetcher{
		client:   &http.Client{Timeout: timeout},
		user:     user,
		password: password,
		maxBytes: maxBytes,
	}
}

// Fetch buffers the attachment and returns it with its content type. An
// attachment above the cap fails with command.ErrMediaTooLarge whether or
// not the response declares its length.
func (f *HTTPMediaFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("media request: %w", err)
	}
	if f.user != "" {
		req.SetBasicAuth(f.user, f.password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %v: %w", err, adapter.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch media: status %d: %w", resp.StatusCode, adapter.ErrUnavailable)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, "", fmt.Errorf("fetch media: %d bytes exceeds limit %d: %w", resp.ContentLength, f.maxBytes, command.ErrMediaTooLarge)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read media: %v: %w", err, adapter.ErrUnavailable)
	}
	if int64(len(raw)) > f.maxBytes {
		return nil, "", fmt.Errorf("fetch media: more than %d bytes: %w", f.maxBytes, command.ErrMediaTooLarge)
	}
	return io.NopCloser(bytes.NewReader(raw)), resp.Header.Get("Content-Type"), nil
}
