// Package apierr defines the error taxonomy surfaced across the
// persistence, lock, and action-registry boundaries (spec.md §6-7).
//
// The HTTP fault wrapper that maps these to status codes is out of scope
// for this core, but the mapping is carried here as a documented method so
// any future caller (an HTTP layer, enginectl's exit-code mapping) has one
// place to read it from.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one member of the abstract error taxonomy.
type Kind string

const (
	NotFound         Kind = "NotFound"
	Invalid          Kind = "Invalid"
	Forbidden        Kind = "Forbidden"
	ActionInProgress Kind = "ActionInProgress"
	NotSupported     Kind = "NotSupported"
	Conflict         Kind = "Conflict"
	Internal         Kind = "Internal"
)

// HTTPStatus returns the status code spec.md §6 maps this kind to.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return 404
	case Invalid:
		return 400
	case Forbidden:
		return 403
	case ActionInProgress:
		return 409
	case NotSupported:
		return 400
	case Conflict:
		return 409
	default:
		return 500
	}
}

// Error is a typed error carrying one taxonomy Kind plus a human-readable
// message and, optionally, a wrapped cause.
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

func (e *Error) Unwrap() error { return e.Cause }

func new_(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) *Error { return new_(NotFound, format, args...) }

// Invalidf builds an Invalid error.
func Invalidf(format string, args ...any) *Error { return new_(Invalid, format, args...) }

// Forbiddenf builds a Forbidden error.
func Forbiddenf(format string, args ...any) *Error { return new_(Forbidden, format, args...) }

// NotSupportedf builds a NotSupported error.
func NotSupportedf(format string, args ...any) *Error { return new_(NotSupported, format, args...) }

// Conflictf builds a Conflict error.
func Conflictf(format string, args ...any) *Error { return new_(Conflict, format, args...) }

// Internalf builds an Internal error, optionally wrapping a cause.
func Internalf(cause error, format string, args ...any) *Error {
	return &Error{Kind: Internal, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ActionInProgressErr is returned only from lock acquisition (spec.md §7):
// the dispatcher treats it as a signal to move on, never as a handler
// failure.
type ActionInProgressErr struct {
	TargetType string
	TargetID   string
	Owner      string // engine_id currently holding the lock
}

func (e *ActionInProgressErr) Error() string {
	return fmt.Sprintf("ActionInProgress: %s %s is locked by engine %s", e.TargetType, e.TargetID, e.Owner)
}

// Is reports equality against the Kind taxonomy so errors.Is(err,
// &apierr.Error{Kind: apierr.ActionInProgress}) style checks keep working
// against this type too.
func (e *ActionInProgressErr) Is(target error) bool {
	var k *Error
	if errors.As(target, &k) {
		return k.Kind == ActionInProgress
	}
	return false
}

// KindOf extracts the taxonomy Kind from err, defaulting to Internal for
// unrecognized errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var aip *ActionInProgressErr
	if errors.As(err, &aip) {
		return ActionInProgress
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
