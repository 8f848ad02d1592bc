package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType defines the type of error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeUnavailable  ErrorType = "unavailable"

	// ErrorTypeUpstream marks a failure reported by the platform API
	ErrorTypeUpstream ErrorType = "upstream"
)

// APIError represents a standardized API error
type APIError struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	HTTPCode  int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Code, e.Message)
}

// WithDetails adds details to the error
func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *APIError) WithRequestID(requestID string) *APIError {
	e.RequestID = requestID
	return e
}

func newError(t ErrorType, status int, code, message string) *APIError {
	return &APIError{
		Type:     t,
		Code:     code,
		Message:  message,
		HTTPCode: status,
	}
}

// ValidationError creates a new validation error
func ValidationError(code string, message string) *APIError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, code, message)
}

// NotFoundError creates a new not found error
func NotFoundError(code string, message string) *APIError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, code, message)
}

// ConflictError creates a new conflict error
func ConflictError(code string, message string) *APIError {
	return newError(ErrorTypeConflict, http.StatusConflict, code, message)
}

// InternalError creates a new internal server error
func InternalError(code string, message string) *APIError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, code, message)
}

// UnauthorizedError creates a new unauthorized error
func UnauthorizedError(code string, message string) *APIError {
	return newError(ErrorTypeUnauthorized, http.StatusUnauthorized, code, message)
}

// UnavailableError reports that the daemon cannot serve the request yet
func UnavailableError(code string, message string) *APIError {
	return newError(ErrorTypeUnavailable, http.StatusServiceUnavailable, code, message)
}

// UpstreamError reports a platform API failure. status is the platform's
// HTTP status, or zero when the request never got an answer.
func UpstreamError(status int, code string, message string) *APIError {
	err := newError(ErrorTypeUpstream, http.StatusBadGateway, code, message)
	switch status {
	case http.StatusNotFound:
		err.Type, err.HTTPCode = ErrorTypeNotFound, http.StatusNotFound
	case http.StatusConflict:
		err.Type, err.HTTPCode = ErrorTypeConflict, http.StatusConflict
	case http.StatusUnauthorized, http.StatusForbidden:
		err.Type, err.HTTPCode = ErrorTypeUnauthorized, status
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		err.Type, err.HTTPCode = ErrorTypeValidation, http.StatusBadRequest
	}
	return err
}

// FromError creates a new API error from a Go error
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	return InternalError("internal_error", err.Error())
}
