// Package pipeline carries the request state machine's error taxonomy: a
// closed set of ErrorKind values with a propagation policy (surfaced to the
// user, admin-only, or fatal at startup).
package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind enumerates the closed set of failure categories the core
// produces. Every Error carries exactly one Kind.
type ErrorKind string

// ErrorKind values, per the error taxonomy.
const (
	KindSourceUnreadable  ErrorKind = "source_unreadable"
	KindInferenceFailed   ErrorKind = "inference_failed"
	KindEmptyResult       ErrorKind = "empty_result"
	KindRateLimited       ErrorKind = "rate_limited"
	KindOverloaded        ErrorKind = "overloaded"
	KindTimeout           ErrorKind = "timeout"
	KindNotFound          ErrorKind = "not_found"
	KindInsufficientData  ErrorKind = "insufficient_data"
	KindPartialPromotion  ErrorKind = "partial_promotion"
	KindInternal          ErrorKind = "internal"
)

// Error is the single error type the core returns. It wraps an ErrorKind
// and an optional cause, and supports errors.Is/As against both the Error
// value and its Kind.
type Error struct {
	Kind       ErrorKind
	Message    string
	Cause      error
	RetryAfter time.Duration // only meaningful for KindRateLimited
}

// New creates an Error of the given kind with a message.
func New(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// RateLimited creates a KindRateLimited error carrying a retry hint.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("rate limited, retry after %s", retryAfter),
		RetryAfter: retryAfter,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/As against the wrapped cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, letting
// callers write errors.Is(err, pipeline.New(pipeline.KindTimeout, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the ErrorKind from err, or KindInternal if err does not
// wrap a *Error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsUserFacing reports whether the kind is meant to be surfaced directly to
// the requesting user rather than treated as admin-only or fatal.
func (k ErrorKind) IsUserFacing() bool {
	switch k {
	case KindSourceUnreadable, KindInferenceFailed, KindEmptyResult,
		KindRateLimited, KindOverloaded, KindTimeout:
		return true
	default:
		return false
	}
}

// IsAdminOnly reports whether the kind is only meaningful to an
// administrator (training/promotion failures, missing resources).
func (k ErrorKind) IsAdminOnly() bool {
	switch k {
	case KindNotFound, KindInsufficientData, KindPartialPromotion:
		return true
	default:
		return false
	}
}
