package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

var (
	// ErrUnreachable is returned when the server could not be contacted at all
	ErrUnreachable = errors.New("server unreachable")
)

// APIError is a non-2xx answer from the management API or the relay
type APIError struct {
	StatusCode int
	Message    string
	Method     string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s (status: %d, method: %s, url: %s)", e.Message, e.StatusCode, e.Method, e.URL)
}

// IsConnectivityError reports whether err means the server could not be
// reached, as opposed to the server answering with an error. Only these
// errors justify falling back to the local cache.
func IsConnectivityError(err error) bool {
	if err == nil || IsCancellation(err) {
		return false
	}
	if errors.Is(err, ErrUnreachable) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// IsCancellation reports whether err stems from the caller cancelling
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// wrapTransportError classifies an error returned by http.Client.Do
func wrapTransportError(err error) error {
	if IsCancellation(err) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, urlErr.Op, urlErr.URL, urlErr.Err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
