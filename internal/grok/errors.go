package grok

import (
	"errors"
	"fmt"
)

// Error codes callers can branch on.
const (
	CodeInvalidParams = "INVALID_PARAMS"
	CodeNoAuthToken   = "NO_AUTH_TOKEN"
	CodeUpscaleError  = "UPSCALE_ERROR"
)

// APIError is the single error surface of the grok client.
type APIError struct {
	Code    string
	Message string
	cause   error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *APIError) Unwrap() error { return e.cause }

func newAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// wrapAPI wraps err under the given code, preserving it as the cause.
// An err that already is an *APIError passes through unchanged.
func wrapAPI(code, message string, err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{Code: code, Message: fmt.Sprintf("%s: %v", message, err), cause: err}
}
