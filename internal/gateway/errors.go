package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/velinussage/pfp-animate/internal/domain"
)

// ErrUnexpectedOutput is returned when the provider output is neither a URL,
// a URL accessor, nor a non-empty list of those.
var ErrUnexpectedOutput = errors.New("unexpected output format")

// ErrMissingCredentials is returned by providers configured without credentials.
var ErrMissingCredentials = errors.New("provider credentials are not configured")

// GatewayError reports a failed provider call or an unusable provider response.
type GatewayError struct {
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway: %s: status %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("gateway: %s: %s", e.Op, msg)
}

func (e *GatewayError) Unwrap() []error {
	if e.Cause == nil {
		return []error{domain.ErrGateway}
	}
	return []error{domain.ErrGateway, e.Cause}
}

// Temporary reports whether the provider asked the caller to back off.
func (e *GatewayError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// FetchError reports a failure while downloading a provider-returned URL.
type FetchError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway: fetch failed: status %d", e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("gateway: fetch failed: %v", e.Cause)
	}
	return "gateway: fetch failed"
}

func (e *FetchError) Unwrap() []error {
	errs := []error{domain.ErrFetch, domain.ErrGateway}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// IsTemporary reports whether err carries a retryable provider condition.
// Fetch failures are never temporary.
func IsTemporary(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return false
	}
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Temporary()
}
