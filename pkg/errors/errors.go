package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
// Retryable tells callers whether the same request may succeed later; policy
// rejections never will, storage hiccups might.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Retryable  bool   `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Is reports whether target carries the same error code, so sentinel
// comparisons keep working on copies produced by WithInternal.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

// Cache error taxonomy. "Not found", "expired", and "access exhausted" are
// deliberately absent: those are normal lookup outcomes, not errors.
var (
	ErrPolicyRejected = &AppError{
		Code:       "CACHE_POLICY_REJECTED",
		Message:    "Attachment rejected by cache admission policy",
		StatusCode: http.StatusUnprocessableEntity,
		Retryable:  false,
	}

	ErrCrypto = &AppError{
		Code:       "CACHE_CRYPTO_FAILURE",
		Message:    "Encryption or decryption failed",
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
	}

	ErrCacheFull = &AppError{
		Code:       "CACHE_FULL",
		Message:    "Cache capacity exhausted",
		StatusCode: http.StatusInsufficientStorage,
		Retryable:  true,
	}

	ErrStorage = &AppError{
		Code:       "CACHE_STORAGE_FAILURE",
		Message:    "Cache storage operation failed",
		StatusCode: http.StatusInternalServerError,
		Retryable:  true,
	}

	ErrStorageTimeout = &AppError{
		Code:       "CACHE_STORAGE_TIMEOUT",
		Message:    "Cache storage operation timed out",
		StatusCode: http.StatusGatewayTimeout,
		Retryable:  true,
	}
)

// Common HTTP-surface errors.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// IsRetryable reports whether the caller may usefully retry the failed operation.
func IsRetryable(err error) bool {
	appErr := FromError(err)
	return appErr != nil && appErr.Retryable
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}
