// Package apperr defines the error taxonomy every command handler reports in.
// The reply composer renders one fixed template per Kind.
package apperr

import (
	"context"
	"errors"
	"fmt"

	"github.com/jun/drivechat/internal/adapter"
)

// Kind classifies a failure for the user-facing reply.
type Kind int

const (
	KindInternal Kind = iota
	KindParse
	KindAuthorizationRequired
	KindNotFound
	KindAmbiguous
	KindForbidden
	KindUnavailable
	// KindPartialFailure marks a SUMMARY that skipped unreadable documents
	// but still produced a result.
	KindPartialFailure
	KindGenerationFailed
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindAuthorizationRequired:
		return "authorization_required"
	case KindNotFound:
		return "not_found"
	case KindAmbiguous:
		return "ambiguous"
	case KindForbidden:
		return "forbidden"
	case KindUnavailable:
		return "unavailable"
	case KindPartialFailure:
		return "partial_failure"
	case KindGenerationFailed:
		return "generation_failed"
	default:
		return "internal"
	}
}

// Error is a classified failure. Subject names the path or file the user
// referred to so the reply can echo it back.
type Error struct {
	Kind    Kind
	Op      string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Subject != "" {
		msg += fmt.Sprintf(" %q", e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// Wrap classifies err with KindOf and attaches op and subject.
// A nil err returns nil.
func Wrap(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Subject == "" {
			ae.Subject = subject
		}
		return ae
	}
	return &Error{Kind: KindOf(err), Op: op, Subject: subject, Err: err}
}

// KindOf maps any error to the taxonomy. Storage sentinels and context
// deadlines are recognised; anything else is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	switch {
	case errors.Is(err, adapter.ErrNotFound):
		return KindNotFound
	case errors.Is(err, adapter.ErrForbidden):
		return KindForbidden
	case errors.Is(err, adapter.ErrUnauthenticated):
		return KindAuthorizationRequired
	case errors.Is(err, adapter.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindUnavailable
	}
	return KindInternal
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
