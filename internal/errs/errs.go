// Package errs defines the error kinds shared across the pipeline and the
// mapping from Gmail API responses to those kinds.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"
)

// Kind partitions failures by how the pipeline reacts to them.
type Kind int

const (
	// KindAuth means credentials are missing, invalid, or expired beyond
	// refresh. Fatal; the CLI maps it to exit code 3.
	KindAuth Kind = iota
	// KindRateLimit is a quota rejection (429). Retried with backoff.
	KindRateLimit
	// KindNetwork is a connection or timeout failure. Retried with backoff.
	KindNetwork
	// KindRemotePermanent is a non-auth 4xx: the single operation fails and
	// the batch continues.
	KindRemotePermanent
	// KindInvalidInput is a configuration or argument validation failure.
	KindInvalidInput
	// KindConflict means the remote object already exists. Resolved
	// internally by refresh-and-lookup; callers should not surface it.
	KindConflict
	// KindCorruptState means a local state file failed to parse.
	KindCorruptState
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindNetwork:
		return "network"
	case KindRemotePermanent:
		return "remote_permanent"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindCorruptState:
		return "corrupt_state"
	}
	return "unknown"
}

// Error carries a kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind. A nil err yields nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Newf builds a kinded error from a format string.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind of err, defaulting to KindNetwork for plain
// transport errors and KindRemotePermanent otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindRemotePermanent
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Retryable reports whether the client should retry err with backoff.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindNetwork:
		return true
	}
	return false
}

// FromGoogleAPI classifies a Gmail API error by HTTP status. Non-API errors
// (connection resets, timeouts) come back as KindNetwork.
func FromGoogleAPI(err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return New(KindNetwork, err)
	}
	switch apiErr.Code {
	case 401, 403:
		// 403 doubles as a quota rejection; Gmail tags those with a
		// rateLimitExceeded/userRateLimitExceeded reason.
		for _, item := range apiErr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return New(KindRateLimit, err)
			}
		}
		return New(KindAuth, err)
	case 429:
		return New(KindRateLimit, err)
	case 409:
		return New(KindConflict, err)
	}
	if apiErr.Code >= 500 {
		return New(KindNetwork, err)
	}
	return New(KindRemotePermanent, err)
}
