// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

// Package errors provides the application error taxonomy: a structured
// AppError carrying a machine-readable code, a human message, and the
// HTTP status the API layer should map it to.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeBadRequest       = "BAD_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeInternal         = "INTERNAL"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// Sentinel errors for use with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrTimeout            = errors.New("timeout")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")
)

// AppError is a structured application error.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error, if any.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail map, replacing any existing one.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithDetail attaches a single detail key/value.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithHTTPStatus overrides the HTTP status.
func (e *AppError) WithHTTPStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// ============================================================================
// Constructors
// ============================================================================

// New creates an AppError with the default 500 status.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusInternalServerError}
}

// Newf creates an AppError with a formatted message.
func Newf(code, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// NewWithStatus creates an AppError with an explicit HTTP status.
func NewWithStatus(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap wraps an error into an AppError with the default 500 status.
func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WrapWithStatus wraps an error with an explicit HTTP status.
func WrapWithStatus(err error, code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ============================================================================
// Convenience constructors
// ============================================================================

// NotFound creates a 404 error for the named resource.
func NotFound(resource string) *AppError {
	return NewWithStatus(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// AlreadyExists creates a 409 error for a duplicate resource.
func AlreadyExists(resource string) *AppError {
	return NewWithStatus(CodeConflict, fmt.Sprintf("%s already exists", resource), http.StatusConflict)
}

// InvalidInput creates a 400 error with the given message.
func InvalidInput(message string) *AppError {
	return NewWithStatus(CodeBadRequest, message, http.StatusBadRequest)
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return NewWithStatus(CodeUnauthorized, message, http.StatusUnauthorized)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return NewWithStatus(CodeForbidden, message, http.StatusForbidden)
}

// Internal creates a 500 error.
func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return NewWithStatus(CodeInternal, message, http.StatusInternalServerError)
}

// Conflict creates a 409 error with the given message.
func Conflict(message string) *AppError {
	return NewWithStatus(CodeConflict, message, http.StatusConflict)
}

// ValidationFailed creates a 400 error carrying per-field messages.
func ValidationFailed(fields map[string]string) *AppError {
	details := make(map[string]any, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return NewWithStatus(CodeValidationFailed, "validation failed", http.StatusBadRequest).
		WithDetails(details)
}

// ============================================================================
// Typed errors
// ============================================================================

// NotFoundError is a typed wrapper for errors.As extraction.
type NotFoundError struct{ *AppError }

// AlreadyExistsError is a typed wrapper for errors.As extraction.
type AlreadyExistsError struct{ *AppError }

// ValidationError is a typed wrapper for errors.As extraction.
type ValidationError struct{ *AppError }

// UnauthorizedError is a typed wrapper for errors.As extraction.
type UnauthorizedError struct{ *AppError }

// ForbiddenError is a typed wrapper for errors.As extraction.
type ForbiddenError struct{ *AppError }

// ConflictError is a typed wrapper for errors.As extraction.
type ConflictError struct{ *AppError }

// InternalError is a typed wrapper for errors.As extraction.
type InternalError struct{ *AppError }

// NewNotFoundError creates a typed not-found error.
func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{NotFound(resource)}
}

// NewAlreadyExistsError creates a typed already-exists error.
func NewAlreadyExistsError(resource string) *AlreadyExistsError {
	return &AlreadyExistsError{AlreadyExists(resource)}
}

// NewValidationError creates a typed validation error.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{NewWithStatus(CodeValidationFailed, message, http.StatusBadRequest)}
}

// NewUnauthorizedError creates a typed unauthorized error.
func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{Unauthorized(message)}
}

// NewForbiddenError creates a typed forbidden error.
func NewForbiddenError(message string) *ForbiddenError {
	return &ForbiddenError{Forbidden(message)}
}

// NewConflictError creates a typed conflict error.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Conflict(message)}
}

// NewInternalError creates a typed internal error.
func NewInternalError(message string) *InternalError {
	return &InternalError{Internal(message)}
}

// ============================================================================
// Inspection helpers
// ============================================================================

// GetAppError extracts an AppError from anywhere in the error chain.
func GetAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HTTPStatusCode maps any error to the HTTP status the API should return.
func HTTPStatusCode(err error) int {
	if ae, ok := GetAppError(err); ok && ae.HTTPStatus != 0 {
		return ae.HTTPStatus
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFoundError reports whether err represents a not-found condition.
func IsNotFoundError(err error) bool {
	var typed *NotFoundError
	if errors.As(err, &typed) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeNotFound {
		return true
	}
	return errors.Is(err, ErrNotFound)
}

// IsConflictError reports whether err represents a conflict.
func IsConflictError(err error) bool {
	var exists *AlreadyExistsError
	var conflict *ConflictError
	if errors.As(err, &exists) || errors.As(err, &conflict) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeConflict {
		return true
	}
	return errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrConflict)
}

// IsValidationError reports whether err represents invalid input.
func IsValidationError(err error) bool {
	var typed *ValidationError
	if errors.As(err, &typed) {
		return true
	}
	if ae, ok := GetAppError(err); ok &&
		(ae.Code == CodeValidationFailed || ae.Code == CodeBadRequest) {
		return true
	}
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidInput)
}

// IsUnauthorizedError reports whether err represents missing authentication.
func IsUnauthorizedError(err error) bool {
	var typed *UnauthorizedError
	if errors.As(err, &typed) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeUnauthorized {
		return true
	}
	return errors.Is(err, ErrUnauthorized)
}

// IsForbiddenError reports whether err represents denied access.
func IsForbiddenError(err error) bool {
	var typed *ForbiddenError
	if errors.As(err, &typed) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeForbidden {
		return true
	}
	return errors.Is(err, ErrForbidden)
}

// Is delegates to the standard library.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to the standard library.
func As(err error, target any) bool {
	return errors.As(err, target)
}
