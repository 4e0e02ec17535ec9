package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable wraps connection failures that survived all retries.
	ErrUnreachable = errors.New("host API unreachable")

	// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response from host API")
)

// StatusError is a well-formed non-2xx HTTP response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
