package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

var (
	// ErrRevoked means the refresh credential is no longer accepted.
	ErrRevoked = errors.New("refresh credential revoked")

	// ErrTransport means the authorization service could not be reached.
	ErrTransport = errors.New("authorization service unavailable")
)

// OAuthClient is the authorization collaborator: grant URL, code
// exchange, refresh and account lookup.
type OAuthClient interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	AccountEmail(ctx context.Context, token *oauth2.Token) (string, error)
}

// Scopes requested at consent time.
var Scopes = []string{
	"https://www.googleapis.com/auth/drive",
	goauth2.UserinfoEmailScope,
}

// GoogleOAuth implements OAuthClient against Google's OAuth2 endpoint.
type GoogleOAuth struct {
	config *oauth2.Config
}

// NewGoogleOAuth creates a client for the given web-application credentials.
func NewGoogleOAuth(clientID, clientSecret, redirectURL string) *GoogleOAuth {
	return &GoogleOAuth{config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}}
}

// AuthCodeURL returns the consent URL. Offline access with forced
// approval makes Google return a refresh token on every grant.
func (g *GoogleOAuth) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return tok, nil
}

func (g *GoogleOAuth) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ts := g.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return tok, nil
}

func (g *GoogleOAuth) AccountEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	svc, err := goauth2.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return "", fmt.Errorf("failed to create oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get user info: %w", err)
	}
	return info.Email, nil
}

// classifyTokenError separates a rejected credential from a transport failure.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" || re.ErrorCode == "unauthorized_client" {
			return fmt.Errorf("%w: %v", ErrRevoked, err)
		}
		if re.Response != nil {
			switch re.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized:
				return fmt.Errorf("%w: %v", ErrRevoked, err)
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
