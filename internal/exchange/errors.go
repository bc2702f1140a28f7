package exchange

import (
	"errors"
	"fmt"

	"github.com/quantfold/basisarb/internal/model"
)

// TransportError wraps a network-level failure: DNS, TLS, timeouts,
// malformed HTTP. Retryable by callers that retry at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// VendorError is a venue-level or logical failure: an error payload behind a
// 200, a failed schema decode, or a violated business precondition.
type VendorError struct {
	Venue model.Venue
	Msg   string
}

func (e *VendorError) Error() string {
	if e.Venue == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Venue, e.Msg)
}

// Transport wraps err as a TransportError.
func Transport(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// Vendorf builds a VendorError with a formatted message.
func Vendorf(venue model.Venue, format string, args ...any) error {
	return &VendorError{Venue: venue, Msg: fmt.Sprintf(format, args...)}
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsVendor reports whether err is (or wraps) a VendorError.
func IsVendor(err error) bool {
	var ve *VendorError
	return errors.As(err, &ve)
}

// Truncate trims a response body for error messages and logs.
func Truncate(body string) string {
	const max = 200
	if len(body) <= max {
		return body
	}
	return body[:max]
}
