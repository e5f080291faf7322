package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the kind of failure a dashboard action ran into
type ErrorType string

const (
	ErrorTypeInference  ErrorType = "inference"
	ErrorTypeNotify     ErrorType = "notify"
	ErrorTypeStore      ErrorType = "store"
	ErrorTypeValidation ErrorType = "validation"
)

// ErrMissingCredentials is returned by a broadcast gateway with no token configured
var ErrMissingCredentials = stderrors.New("broadcast gateway credentials missing")

// AppError is a typed error surfaced to the user
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.err
}

// NewInferenceError wraps a failed diagnosis call
func NewInferenceError(msg string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInference,
		Message: msg,
		Code:    http.StatusBadGateway,
		err:     err,
	}
}

// NewNotifyError wraps a failed alert broadcast
func NewNotifyError(msg string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeNotify,
		Message: msg,
		Code:    http.StatusBadGateway,
		err:     err,
	}
}

// NewStoreError wraps a history log read or write failure
func NewStoreError(msg string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeStore,
		Message: msg,
		Code:    http.StatusInternalServerError,
		err:     err,
	}
}

// NewValidationError wraps bad user input
func NewValidationError(msg string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: msg,
		Code:    http.StatusBadRequest,
		err:     err,
	}
}

// TypeOf returns the error type, or "" when err is not an AppError
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// StatusCode returns the HTTP status for err
func StatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

func IsInference(err error) bool  { return TypeOf(err) == ErrorTypeInference }
func IsNotify(err error) bool     { return TypeOf(err) == ErrorTypeNotify }
func IsStore(err error) bool      { return TypeOf(err) == ErrorTypeStore }
func IsValidation(err error) bool { return TypeOf(err) == ErrorTypeValidation }
