package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMalformedResponse is returned when a 2xx response lacks the fields
	// the operation needs (e.g. a refresh without access_token).
	ErrMalformedResponse = errors.New("authsdk: malformed response")

	// ErrNoToken is returned when an operation needs a bearer token and none
	// was given.
	ErrNoToken = errors.New("authsdk: no token")
)

// ============================================================================
// APIError - non-2xx responses
// ============================================================================

// APIError represents a non-2xx response from the auth backend. Message is
// meant to be shown to the user as-is.
type APIError struct {
	// StatusCode is the HTTP status code of the response
	StatusCode int

	// Message is the server's message, or a generic one when the payload
	// shape was not recognised
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// IsUnauthorized reports whether err is an APIError with status 401.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// ============================================================================
// NetworkError - transport failures
// ============================================================================

// NetworkError wraps failures to reach the backend at all (DNS, refused
// connections, timeouts), as opposed to the backend answering with an error.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: failed to send request: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err (or anything it wraps) is a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response body into an APIError. op names
// the operation for the generic fallback message ("login failed").
func parseErrorResponse(op string, statusCode int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if msg := errResp.text(); msg != "" {
			return &APIError{StatusCode: statusCode, Message: msg}
		}
	}

	return &APIError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("%s failed: HTTP %d %s", op, statusCode, http.StatusText(statusCode)),
	}
}

// ParseErrorResponse builds the error for a non-2xx response body from any
// panel endpoint, using the same message rules as the auth calls.
func ParseErrorResponse(op string, statusCode int, body []byte) error {
	return parseErrorResponse(op, statusCode, body)
}
