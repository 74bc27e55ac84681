package mgmt

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrConnection is matched by every *ConnectionError.
var ErrConnection = errors.New("connection error")

// ValidationError is a client-side rejection made before any request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation builds a *ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AuthError means there is no usable session or the server rejected the
// credentials.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// NotAuthenticated is returned by every operation that needs a session.
func NotAuthenticated() error {
	return &AuthError{Message: "not authenticated"}
}

// APIError is a failure reported by the management server. Message is the
// server's own text and is empty when the server gave none.
type APIError struct {
	Operation  Operation
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.StatusCode >= 300:
		return fmt.Sprintf("%s failed: %d %s", e.Operation, e.StatusCode, http.StatusText(e.StatusCode))
	default:
		return fmt.Sprintf("unexpected response from %s", e.Operation)
	}
}

// ConnectionError is a transport failure. The server may or may not have
// processed the request.
type ConnectionError struct {
	Operation Operation
	Err       error
}

func (e *ConnectionError) Error() string {
	return ErrConnection.Error()
}

// Detail includes the underlying transport error, for logs.
func (e *ConnectionError) Detail() string {
	if e.Err == nil {
		return e.Error()
	}
	return fmt.Sprintf("%s: %s: %v", e.Error(), e.Operation, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}
