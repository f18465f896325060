package towersdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ============================================================================
// Error Kinds
// ============================================================================

var (
	// ErrInvalidAddress is returned by NewSession when the controller URL is not
	// a parseable absolute http(s) URL. It is not retryable.
	ErrInvalidAddress = errors.New("towersdk: invalid controller address")

	// ErrAuthentication is returned when the controller rejects the supplied
	// credentials. The SDK never retries it.
	ErrAuthentication = errors.New("towersdk: authentication failed")

	// ErrNetwork is returned when the transport fails, times out or the request
	// context is cancelled. The caller may retry the same operation.
	ErrNetwork = errors.New("towersdk: network failure")

	// ErrProtocol is returned when a response does not have the expected shape,
	// which usually means a client/controller version mismatch.
	ErrProtocol = errors.New("towersdk: unexpected response")

	// ErrUnknownEndpoint is returned when the controller's route table has no
	// entry for the requested logical name.
	ErrUnknownEndpoint = errors.New("towersdk: unknown endpoint")

	// ErrDeserialization is returned when a required entity field is missing or
	// has the wrong shape.
	ErrDeserialization = errors.New("towersdk: cannot deserialize entity")

	// ErrSessionExpired is returned when an operation needs a valid token and the
	// session has none. The caller must authenticate again.
	ErrSessionExpired = errors.New("towersdk: session expired")
)

// ============================================================================
// APIError
// ============================================================================

// APIError is a non-2xx response from the controller. It is always wrapped
// together with one of the error kinds above, so callers can match either.
type APIError struct {
	// StatusCode is the HTTP status code of the response
	StatusCode int

	// Detail is the controller's "detail" message, or the status text
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
}

// errorBody is the shape of controller error responses, {"detail": "..."}.
type errorBody struct {
	Detail string `json:"detail"`
}

// parseErrorResponse turns a non-2xx response into an error of the right kind.
// 401 and 403 are authentication failures, everything else is a protocol error.
func parseErrorResponse(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Detail != "" {
		apiErr.Detail = eb.Detail
	} else {
		apiErr.Detail = http.StatusText(statusCode)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrAuthentication, apiErr)
	default:
		return fmt.Errorf("%w: %w", ErrProtocol, apiErr)
	}
}

// ============================================================================
// DeserializationError
// ============================================================================

// DeserializationError reports a required field of an entity that is missing or
// malformed. It matches ErrDeserialization with errors.Is.
type DeserializationError struct {
	// Entity is the entity type being parsed, e.g. "group"
	Entity string

	// Field is the JSON key that failed, empty when the whole document is bad
	Field string

	// Reason describes what was wrong with the field
	Reason string
}

// Error implements the error interface.
func (e *DeserializationError) Error() string {
	var b strings.Builder
	b.WriteString("towersdk: cannot deserialize ")
	b.WriteString(e.Entity)
	if e.Field != "" {
		b.WriteString(": field ")
		b.WriteString(e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Is lets errors.Is(err, ErrDeserialization) match.
func (e *DeserializationError) Is(target error) bool {
	return target == ErrDeserialization
}
