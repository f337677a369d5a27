package httpclient

import (
	"errors"
	"fmt"
)

// StatusError is a non-skippable HTTP status of 400 or above.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// FatalError is returned when a request cannot succeed: retries were
// exhausted, the status was rejected, or the transport failed permanently.
type FatalError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("request %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
