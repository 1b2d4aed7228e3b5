package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidState is returned for a grant state that fails verification.
var ErrInvalidState = errors.New("invalid authorization state")

// signState binds a grant to an identity and a one-time nonce.
func signState(secret []byte, identity, nonce string, exp time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": identity,
		"jti": nonce,
		"exp": exp.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// parseState verifies the state signature and expiry and returns the
// identity and nonce it carries.
func parseState(secret []byte, state string) (identity, nonce string, err error) {
	if state == "" {
		return "", "", ErrInvalidState
	}
	token, err := jwt.Parse(state, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", ErrInvalidState
	}
	identity, _ = claims["sub"].(string)
	nonce, _ = claims["jti"].(string)
	if identity == "" || nonce == "" {
		return "", "", fmt.Errorf("%w: missing claims", ErrInvalidState)
	}
	return identity, nonce, nil
}
