// Package apperr is the caller-visible error taxonomy of the fulfillment core.
//
// Every operation fails with exactly one Kind so transports can map it onto a
// status code without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorises an error.
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidState        Kind = "INVALID_STATE"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindProviderUnavailable Kind = "PROVIDER_UNAVAILABLE"
	KindChannelDelivery     Kind = "CHANNEL_DELIVERY"
	KindConcurrencyConflict Kind = "CONCURRENCY_CONFLICT"
	KindInternal            Kind = "INTERNAL"
)

// Sentinels usable with errors.Is.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrChannelDelivery     = &Error{Kind: KindChannelDelivery}
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict}
)

// Error carries a Kind, a user-facing message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so sentinels compare by category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New builds an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Validation is shorthand for New(KindValidation, ...).
func Validation(format string, args ...any) *Error { return New(KindValidation, format, args...) }

// NotFound is shorthand for New(KindNotFound, ...).
func NotFound(format string, args ...any) *Error { return New(KindNotFound, format, args...) }

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing message of err without the kind prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}
