package relay

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTokenMissing is returned when no upstream API token is configured
	ErrTokenMissing = errors.New("API token not configured")

	// ErrTimeout is returned when the upstream call exceeds its ceiling
	ErrTimeout = errors.New("upstream request timeout")

	// ErrUpstream is returned when the upstream call fails for any other reason
	ErrUpstream = errors.New("upstream request failed")

	// ErrUnexpectedResponse is returned by ParseResult for payloads that are
	// neither an immediate result nor a job handle
	ErrUnexpectedResponse = errors.New("unexpected response from server")
)

// StatusError is a non-2xx answer from the conversion service
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return e.Message
}

func (e *StatusError) Unwrap() error {
	return ErrUpstream
}

// UnexpectedResponseError carries a payload ParseResult could not classify
type UnexpectedResponseError struct {
	Payload string
}

func (e *UnexpectedResponseError) Error() string {
	return "unexpected response from server: " + e.Payload
}

func (e *UnexpectedResponseError) Is(target error) bool {
	return target == ErrUnexpectedResponse
}

// IsTimeout reports whether err is an upstream timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// classify maps a transport error onto the relay taxonomy. A cancelled
// caller keeps context.Canceled so it is not mistaken for a failure.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("upstream request cancelled: %w", context.Canceled)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
}
