package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kuhlman-labs/migration-accelerator/internal/storage"
)

// APIError represents a standardized API error response.
// It includes an HTTP status code and a user-facing message.
type APIError struct {
	Code    int    `json:"-"`                 // HTTP status code
	Message string `json:"error"`             // User-facing error message
	Details string `json:"details,omitempty"` // Optional additional details
	Field   string `json:"field,omitempty"`   // Optional field name for validation errors
}

// Error implements the error interface.
func (e APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// StatusCode returns the HTTP status code for this error.
func (e APIError) StatusCode() int {
	if e.Code == 0 {
		return http.StatusInternalServerError
	}
	return e.Code
}

// WithDetails returns a copy of the error with additional details.
func (e APIError) WithDetails(details string) APIError {
	return APIError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Field:   e.Field,
	}
}

// WithField returns a copy of the error with a field name.
func (e APIError) WithField(field string) APIError {
	return APIError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Field:   field,
	}
}

// Common API errors - use these for consistent error responses
var (
	// 400 Bad Request errors
	ErrInvalidJSON = APIError{
		Code:    http.StatusBadRequest,
		Message: "Invalid JSON in request body",
	}
	ErrInvalidID = APIError{
		Code:    http.StatusBadRequest,
		Message: "Invalid ID format",
	}

	// 401 Unauthorized errors
	ErrInvalidCredentials = APIError{
		Code:    http.StatusUnauthorized,
		Message: "Invalid email or password",
	}

	// 404 Not Found errors
	ErrUserNotFound = APIError{
		Code:    http.StatusNotFound,
		Message: "User not found",
	}
	ErrProjectNotFound = APIError{
		Code:    http.StatusNotFound,
		Message: "Project not found",
	}
	ErrMigrationNotFound = APIError{
		Code:    http.StatusNotFound,
		Message: "Migration not found",
	}

	// 500 Internal Server Error
	ErrInternal = APIError{
		Code:    http.StatusInternalServerError,
		Message: "An internal error occurred",
	}

	// 503 Service Unavailable
	ErrServiceUnavailable = APIError{
		Code:    http.StatusServiceUnavailable,
		Message: "Service temporarily unavailable",
	}
	ErrLogLevelUnavailable = APIError{
		Code:    http.StatusServiceUnavailable,
		Message: "Runtime log level control is not enabled",
	}
)

// WriteError writes an APIError to the response writer.
func WriteError(w http.ResponseWriter, err APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode())
	_ = json.NewEncoder(w).Encode(err)
}

// WriteErrorFromErr writes an error to the response writer.
// If the error is an APIError, it uses its status code.
// Otherwise, it returns a 500 Internal Server Error.
func WriteErrorFromErr(w http.ResponseWriter, err error) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		WriteError(w, apiErr)
		return
	}
	WriteError(w, ErrInternal.WithDetails(err.Error()))
}

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) APIError {
	return APIError{
		Code:    http.StatusBadRequest,
		Message: message,
		Field:   field,
	}
}

// NewNotFoundError creates a not found error for a specific resource.
func NewNotFoundError(resource, identifier string) APIError {
	return APIError{
		Code:    http.StatusNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
	}
}

// NewConflictError creates a conflict error with a specific message.
func NewConflictError(message string) APIError {
	return APIError{
		Code:    http.StatusConflict,
		Message: message,
	}
}

// NewUnauthorizedError creates a 401 error with a specific message.
func NewUnauthorizedError(message string) APIError {
	return APIError{
		Code:    http.StatusUnauthorized,
		Message: message,
	}
}

// NewForbiddenError creates a 403 error naming the missing permission.
func NewForbiddenError(permission string) APIError {
	return APIError{
		Code:    http.StatusForbidden,
		Message: fmt.Sprintf("Permission denied: %s permission required", permission),
	}
}

// NewInternalError creates a 500 error whose message names the failed
// operation, e.g. "Failed to fetch users: <cause>".
func NewInternalError(operation string, err error) APIError {
	return APIError{
		Code:    http.StatusInternalServerError,
		Message: fmt.Sprintf("%s: %v", operation, err),
	}
}

// storeError maps storage sentinels onto API errors. notFound and conflict
// replace the generic messages for those cases.
func storeError(err error, operation string, notFound, conflict APIError) APIError {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return notFound
	case errors.Is(err, storage.ErrConflict):
		return conflict
	case errors.Is(err, storage.ErrValidation):
		return NewValidationError("", err.Error())
	default:
		return NewInternalError(operation, err)
	}
}
