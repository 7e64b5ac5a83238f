// Package core holds error types shared by the web surface and the
// download statistics pipeline.
package core

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError for clients.
type ErrorType string

const (
	// ErrorTypeUpstream indicates the npm downloads API failed (502/503)
	ErrorTypeUpstream ErrorType = "upstream_error"
	// ErrorTypeRateLimit indicates the npm downloads API rejected us with 429
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeInvalidRequest indicates a client error (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates a missing or wrong operator token (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates a catalog entity or route does not exist (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeStorage indicates a database failure (500)
	ErrorTypeStorage ErrorType = "storage_error"
)

// AppError is the error type handlers translate into HTTP responses.
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	// Source names the upstream service, when there is one
	Source string `json:"source,omitempty"`
	// Err is kept for logs and never sent to clients
	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Source, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the explicit status code or the default for the type.
func (e *AppError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON returns the client-facing error body.
func (e *AppError) ToJSON() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewUpstreamError wraps a failed call to an upstream service.
func NewUpstreamError(source string, statusCode int, message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeUpstream,
		Message:    message,
		StatusCode: statusCode,
		Source:     source,
		Err:        err,
	}
}

// NewRateLimitError reports an upstream 429.
func NewRateLimitError(source, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Source:     source,
	}
}

// NewInvalidRequestError creates a 400 error.
func NewInvalidRequestError(message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewAuthenticationError creates a 401 error.
func NewAuthenticationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewStorageError wraps a database failure as a 500.
func NewStorageError(message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeStorage,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ParseUpstreamError maps a non-2xx upstream response onto an AppError.
// The npm API reports errors as {"error": "..."}; other bodies are used verbatim.
func ParseUpstreamError(source string, statusCode int, body []byte) *AppError {
	var payload struct {
		Error string `json:"error"`
	}
	message := string(body)
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(source, message)
	case statusCode >= 500:
		return NewUpstreamError(source, http.StatusBadGateway, message, nil)
	default:
		return NewUpstreamError(source, statusCode, message, nil)
	}
}
