package immich

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthRequired is matched by every authentication failure: no
// credential available, or the service rejected the one that was sent.
var ErrAuthRequired = errors.New("immich authentication required")

// AuthError is returned on HTTP 401/403. The credential that caused it
// has already been discarded.
type AuthError struct {
	Endpoint   string
	StatusCode int
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: no API key available", e.Endpoint)
	}
	return fmt.Sprintf("%s: authentication failed with status %d: invalid API key", e.Endpoint, e.StatusCode)
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuthRequired
}

// RequestError is a non-2xx response other than 401/403
type RequestError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: API request failed with status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Temporary reports whether retrying later may succeed (5xx and 429)
func (e *RequestError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// TransientError wraps a network failure or a body that could not be read
type TransientError struct {
	Endpoint string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err requires re-authentication
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthRequired)
}

// IsTransient reports whether err is worth retrying on a later page
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re.Temporary()
	}
	return false
}
