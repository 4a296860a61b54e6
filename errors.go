// Package corestate is the root package of the in-process state engine:
// it defines the shared Value type and the error taxonomy every
// subpackage (pkg/store, pkg/snapshot, pkg/memory, pkg/security,
// pkg/metrics, pkg/runtime, pkg/container) returns errors in terms of.
package corestate

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed, so callers can branch on
// failure mode instead of parsing error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicate
	KindNotFound
	KindPathConflict
	KindUnknownOp
	KindSerialization
	KindQuotaExceeded
	KindPolicyViolation
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	case KindPathConflict:
		return "path_conflict"
	case KindUnknownOp:
		return "unknown_op"
	case KindSerialization:
		return "serialization_error"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindPolicyViolation:
		return "policy_violation"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every corestate
// component. It wraps an optional cause without losing the Kind, so
// errors.Is/errors.As and KindOf both work across component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Errorf builds an *Error of the given kind with a formatted message.
// If any argument is an error, the last such argument becomes the
// wrapped cause (it is still formatted into the message as well).
func Errorf(kind Kind, format string, args ...any) *Error {
	e := &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
	for _, a := range args {
		if cause, ok := a.(error); ok {
			e.Cause = cause
		}
	}
	return e
}

// KindOf returns the Kind carried by err, or KindUnknown if err does not
// wrap a *corestate.Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether the first *Error in err's chain carries the given
// Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
