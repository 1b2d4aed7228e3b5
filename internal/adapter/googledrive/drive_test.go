package googledrive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"testing"

	"github.com/jun/drivechat/internal/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain name", "Reports", "'Reports'"},
		{"single quote is escaped", "Bob's notes", `'Bob\'s notes'`},
		{"backslash is escaped", `a\b`, `'a\\b'`},
		{"empty", "", "''"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, quote(tt.in))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"404 is not found", &googleapi.Error{Code: http.StatusNotFound}, adapter.ErrNotFound},
		{"401 is unauthenticated", &googleapi.Error{Code: http.StatusUnauthorized}, adapter.ErrUnauthenticated},
		{"403 is forbidden", &googleapi.Error{Code: http.StatusForbidden}, adapter.ErrForbidden},
		{"403 rate limit is unavailable", &googleapi.Error{
			Code:   http.StatusForbidden,
			Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}},
		}, adapter.ErrUnavailable},
		{"429 is unavailable", &googleapi.Error{Code: http.StatusTooManyRequests}, adapter.ErrUnavailable},
		{"503 is unavailable", &googleapi.Error{Code: http.StatusServiceUnavailable}, adapter.ErrUnavailable},
		{"deadline is unavailable", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), adapter.ErrUnavailable},
		{"connection reset is unavailable", &url.Error{Op: "Get", URL: "https://www.googleapis.com/drive/v3/files", Err: syscall.ECONNRESET}, adapter.ErrUnavailable},
		{"dns failure is unavailable", fmt.Errorf("list: %w", &url.Error{Op: "Get", URL: "https://www.googleapis.com", Err: &net.DNSError{Err: "no such host", Name: "www.googleapis.com"}}), adapter.ErrUnavailable},
		{"bare net error is unavailable", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, adapter.ErrUnavailable},
		{"token refusal is unauthenticated", &url.Error{Op: "Get", URL: "https://www.googleapis.com", Err: &oauth2.RetrieveError{ErrorCode: "invalid_grant"}}, adapter.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err)
			assert.True(t, errors.Is(got, tt.want), "got %v", got)
		})
	}
}

func TestClassify_PassesThroughUnknown(t *testing.T) {
	base := errors.New("decode response: unexpected field")
	got := classify("op", base)
	require.ErrorIs(t, got, base)
	for _, sentinel := range []error{adapter.ErrUnavailable, adapter.ErrNotFound, adapter.ErrForbidden, adapter.ErrUnauthenticated} {
		assert.False(t, errors.Is(got, sentinel), "classified as %v", sentinel)
	}
}

func TestProvider_RejectsMissingCredential(t *testing.T) {
	p := NewProvider()
	_, err := p.GetAdapter(context.Background(), "whatsapp:+1555", nil)
	require.ErrorIs(t, err, adapter.ErrUnauthenticated)

	_, err = p.GetAdapter(context.Background(), "whatsapp:+1555", &oauth2.Token{})
	require.ErrorIs(t, err, adapter.ErrUnauthenticated)
}
