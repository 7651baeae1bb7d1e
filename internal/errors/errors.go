// Package errors defines the failure taxonomy shared by the backing clients and
// the request dispatcher.
package errors

import (
	"errors"
	"fmt"
)

// Transport-level failures. These never reach tool handlers.
var (
	// ErrParse indicates a malformed protocol message.
	ErrParse = errors.New("parse error")

	// ErrMethodNotFound indicates an unrecognized top-level method.
	ErrMethodNotFound = errors.New("method not found")

	// ErrToolNotFound indicates an unrecognized tool name inside tools/call.
	ErrToolNotFound = errors.New("unknown tool")
)

// Operation-level failures, reported as error-flagged tool results.
var (
	// ErrInvalidArgument indicates a missing or malformed tool argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates the upstream has no matching crate or version.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable indicates a required backing source is not usable.
	ErrUnavailable = errors.New("unavailable")

	// ErrUpstream indicates an unexpected upstream status or payload.
	ErrUpstream = errors.New("upstream error")
)

// Compile-time verification that UpstreamError satisfies error.
var _ error = (*UpstreamError)(nil)

// UpstreamError describes a non-2xx response other than 404.
type UpstreamError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: request to %s failed with status %d", e.URL, e.StatusCode)
}

// Unwrap lets errors.Is match ErrUpstream.
func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// Kind returns a stable label for err, used by the call journal and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrParse):
		return "parse_error"
	case errors.Is(err, ErrMethodNotFound):
		return "method_not_found"
	case errors.Is(err, ErrToolNotFound):
		return "tool_not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	default:
		return "internal"
	}
}
