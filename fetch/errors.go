package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrDisabled is returned by a disabled Query instead of fetching.
var ErrDisabled = errors.New("fetch: query disabled")

// StatusError attaches an HTTP status to a fetch failure.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch: status %d", e.Code)
	}
	return fmt.Sprintf("fetch: status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status.
func (e *StatusError) StatusCode() int { return e.Code }

// IsAuthError reports whether err carries an unauthorized or forbidden
// status anywhere in its chain. Any error with a StatusCode() int method
// counts, not only *StatusError.
func IsAuthError(err error) bool {
	var sc interface{ StatusCode() int }
	if !errors.As(err, &sc) {
		return false
	}
	switch sc.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}
