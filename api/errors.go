package api

import (
	"fmt"
	"net/http"
)

// HTTPError represents an error with an HTTP status code.
type HTTPError struct {
	Code    int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// WithErr attaches a cause to a catalogue error, keeping the original code
// and message.
func (e *HTTPError) WithErr(err error) *HTTPError {
	return &HTTPError{Code: e.Code, Message: e.Message, Err: err}
}

var (
	ErrInvalidJSON         = &HTTPError{Code: http.StatusBadRequest, Message: "invalid json body"}
	ErrInvalidPayload      = &HTTPError{Code: http.StatusBadRequest, Message: "location requires lat and lon"}
	ErrMalformedBatchInput = &HTTPError{Code: http.StatusBadRequest, Message: "request body must contain a locations array"}
	ErrInvalidQueryParam   = &HTTPError{Code: http.StatusBadRequest, Message: "invalid query parameter"}
	ErrUnauthorized        = &HTTPError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrNoLocations         = &HTTPError{Code: http.StatusNotFound, Message: "no locations recorded"}
	ErrInternalServerError = &HTTPError{Code: http.StatusInternalServerError, Message: "internal server error"}
)
