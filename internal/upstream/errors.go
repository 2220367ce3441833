package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredentials means the pool was constructed with zero usable keys.
	ErrNoCredentials = errors.New("no credentials configured")

	// ErrExhausted means every credential failed within one resolution.
	ErrExhausted = errors.New("all credentials exhausted")
)

// StatusError is a non-2xx response from an upstream API.
type StatusError struct {
	Status  int    // HTTP status
	Code    string // upstream error code, if any
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}

// IsCapacity reports whether err is a quota or rate-limit response.
// These are retryable against a different credential.
func IsCapacity(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Status == 403 || se.Status == 429
}

// IsClient reports whether err is a non-capacity 4xx response. These
// indicate a malformed request or a missing resource, not a capacity
// problem, so retrying with another credential cannot help.
func IsClient(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Status >= 400 && se.Status < 500 && se.Status != 403 && se.Status != 429
}
