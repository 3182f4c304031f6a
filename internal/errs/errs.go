// Package errs defines the closed set of error kinds the memory engine
// surfaces to callers. Kinds, not types: every client-facing failure
// is one of these, wrapped around whatever caused it.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed taxonomy of error categories.
type Kind string

const (
	Validation  Kind = "validation"
	NotFound    Kind = "not_found"
	Paused      Kind = "paused"
	OverCapacity Kind = "over_capacity"
	Contention  Kind = "contention"
	Degraded    Kind = "degraded"
	Internal    Kind = "internal"
)

// E is an error carrying a Kind plus a wrapped cause.
type E struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *E) Unwrap() error { return e.Err }

// New constructs a kinded error with a message and no wrapped cause.
func New(kind Kind, msg string) error {
	return &E{Kind: kind, Msg: msg}
}

// Wrap constructs a kinded error wrapping an existing error.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &E{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *E
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to Internal if err is
// not a kinded error.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return Internal
}
