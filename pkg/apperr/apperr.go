// Package apperr defines the error taxonomy shared by the order, execution and
// position services. Every error returned by a service wraps exactly one of the
// sentinels below so callers can classify it with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing resource, or one not owned by the caller's account.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks a mutation attempted on a non-mutable resource.
	ErrInvalidState = errors.New("invalid state")
	// ErrStale marks an update older than the state it would overwrite.
	ErrStale = errors.New("stale update")
	// ErrInfrastructure marks an unavailable store or broker.
	ErrInfrastructure = errors.New("infrastructure unavailable")
)

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func InvalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func Stale(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStale, fmt.Sprintf(format, args...))
}

// Infrastructure wraps a store or broker error. The cause stays reachable
// through errors.Is / errors.As.
func Infrastructure(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrInfrastructure, fmt.Sprintf(format, args...), err)
}

// Message strips the sentinel prefix so handlers can show only the detail.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, sentinel := range []error{ErrValidation, ErrNotFound, ErrInvalidState, ErrStale} {
		prefix := sentinel.Error() + ": "
		if msg := err.Error(); errors.Is(err, sentinel) && len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return err.Error()
}
