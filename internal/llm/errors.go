package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyCompletion is returned when a backend answers with no usable text.
var ErrEmptyCompletion = errors.New("llm: empty completion from model")

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// APIError is a non-2xx answer from a provider's HTTP API.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Status, e.Body)
}

// newAPIError builds an APIError and wraps authentication failures as
// permanent so the retry middleware fails fast on them.
func newAPIError(provider string, status int, body string) error {
	err := &APIError{Provider: provider, Status: status, Body: body}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return NewPermanentError(err)
	}
	return err
}

// IsRateLimited reports whether err is a provider 429.
func IsRateLimited(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusTooManyRequests
}

// IsAuthFailure reports whether err is a credential rejection.
func IsAuthFailure(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) &&
		(ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden)
}
