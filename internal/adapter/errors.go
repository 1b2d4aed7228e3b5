package adapter

import (
	"errors"
)

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrForbidden is returned when the provider denies access to a resource.
	ErrForbidden = errors.New("permission denied")

	// ErrUnauthenticated is returned when the provider rejects the credential.
	// The caller may refresh it and retry once.
	ErrUnauthenticated = errors.New("credential rejected")

	// ErrUnavailable is returned on timeouts, rate limits and provider-side failures.
	ErrUnavailable = errors.New("storage temporarily unavailable")
)
