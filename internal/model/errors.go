package model

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies pipeline failures so callers can branch on the failure
// type instead of matching messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindExtraction
	KindRateLimit
	KindValidation
	KindTransform
	KindPoolExhausted
	KindConnection
	KindLoad
)

func (k Kind) String() string {
	switch k {
	case KindExtraction:
		return "extraction"
	case KindRateLimit:
		return "rate_limit"
	case KindValidation:
		return "validation"
	case KindTransform:
		return "transform"
	case KindPoolExhausted:
		return "pool_exhausted"
	case KindConnection:
		return "connection"
	case KindLoad:
		return "load"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Op   string // Operation that failed, e.g. "extract", "load"
	Err  error

	// RetryAfter is the upstream's requested wait for KindRateLimit, if any.
	RetryAfter time.Duration

	// Permanent marks failures that repeating the same call cannot fix,
	// such as a rejected API key.
	Permanent bool
}

// NewError wraps err with a kind and operation.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RetryAfter returns the rate-limit hint carried by err, or zero.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// IsPermanent reports whether the first *Error in err's chain is marked
// permanent.
func IsPermanent(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Permanent
}
