package executor

import (
	"errors"
	"fmt"
)

// Failure kinds. Each is scoped to one attempt; the executor never retries a trade.
var (
	ErrQuoteUnavailable    = errors.New("quote unavailable")
	ErrBuildFailed         = errors.New("build failed")
	ErrSubmissionRejected  = errors.New("submission rejected")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// ErrInvalidIntent is returned before any network call for unusable intents.
var ErrInvalidIntent = errors.New("invalid trade intent")

// Error is a typed executor failure. errors.Is matches both the kind and the cause.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

// Unwrap exposes the kind and the cause.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Retryable reports whether a later attempt may succeed unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == ErrQuoteUnavailable || e.Kind == ErrConfirmationTimeout
}

func newError(kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindLabel returns a short label for err, for metrics and logs.
func KindLabel(err error) string {
	switch {
	case errors.Is(err, ErrQuoteUnavailable):
		return "quote_unavailable"
	case errors.Is(err, ErrBuildFailed):
		return "build_failed"
	case errors.Is(err, ErrSubmissionRejected):
		return "submission_rejected"
	case errors.Is(err, ErrConfirmationTimeout):
		return "confirmation_timeout"
	case errors.Is(err, ErrInvalidIntent):
		return "invalid_intent"
	default:
		return "other"
	}
}
