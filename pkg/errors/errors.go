package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Authentication errors
	ErrCodeInvalidCredentials      ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeAccountBlocked          ErrorCode = "ACCOUNT_BLOCKED"
	ErrCodeTokenInvalid            ErrorCode = "TOKEN_INVALID"
	ErrCodeSessionExpired          ErrorCode = "SESSION_EXPIRED"
	ErrCodeSessionExpiredElsewhere ErrorCode = "SESSION_EXPIRED_ELSEWHERE"

	// Device policy errors
	ErrCodeDeviceBlocked        ErrorCode = "DEVICE_BLOCKED"
	ErrCodeDeviceLimitExceeded  ErrorCode = "DEVICE_LIMIT_EXCEEDED"
	ErrCodeDeviceSessionInvalid ErrorCode = "DEVICE_SESSION_INVALID"
	ErrCodeInvalidPolicyValue   ErrorCode = "INVALID_POLICY_VALUE"
)

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode              // Unique error code
	Message string                 // Human-readable error message
	Details map[string]interface{} // Optional additional details
	Err     error                  // Wrapped underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code, so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithDetail adds a detail to the error. The receiver is copied so shared sentinels stay untouched.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	c := *e
	c.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		c.Details[k] = v
	}
	c.Details[key] = value
	return &c
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
// Returns ErrCodeInternal if the error is not a structured Error
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeInvalidPolicyValue:
		return http.StatusBadRequest

	case ErrCodeUnauthorized, ErrCodeInvalidCredentials, ErrCodeTokenInvalid,
		ErrCodeSessionExpired, ErrCodeSessionExpiredElsewhere, ErrCodeDeviceSessionInvalid:
		return http.StatusUnauthorized

	case ErrCodeForbidden, ErrCodeAccountBlocked, ErrCodeDeviceBlocked, ErrCodeDeviceLimitExceeded:
		return http.StatusForbidden

	case ErrCodeNotFound:
		return http.StatusNotFound

	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for the operational error taxonomy. Compare with errors.Is or IsCode.
var (
	ErrInvalidCredentials      = New(ErrCodeInvalidCredentials, "invalid email or password")
	ErrAccountBlocked          = New(ErrCodeAccountBlocked, "account is blocked")
	ErrDeviceBlocked           = New(ErrCodeDeviceBlocked, "this device has been blocked by an administrator")
	ErrDeviceLimitExceeded     = New(ErrCodeDeviceLimitExceeded, "maximum number of registered devices reached")
	ErrSessionExpired          = New(ErrCodeSessionExpired, "session expired, please log in again")
	ErrSessionExpiredElsewhere = New(ErrCodeSessionExpiredElsewhere, "session ended because the account signed in elsewhere")
	ErrDeviceSessionInvalid    = New(ErrCodeDeviceSessionInvalid, "session is not valid for this device")
	ErrInvalidPolicyValue      = New(ErrCodeInvalidPolicyValue, "device limit must be 1 or 2")
	ErrTokenInvalid            = New(ErrCodeTokenInvalid, "invalid token")
	ErrUnauthorized            = New(ErrCodeUnauthorized, "unauthorized")
	ErrForbidden               = New(ErrCodeForbidden, "forbidden")
)

// NotFound creates a "not found" error
func NotFound(resourceType, identifier string) *Error {
	return Newf(ErrCodeNotFound, "%s not found: %s", resourceType, identifier)
}

// InvalidInput creates an "invalid input" error
func InvalidInput(field, reason string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason))
}

// RateLimitExceeded creates a "rate limit exceeded" error
func RateLimitExceeded(retryAfter string) *Error {
	err := New(ErrCodeRateLimitExceeded, "rate limit exceeded")
	if retryAfter != "" {
		err = err.WithDetail("retry_after", retryAfter)
	}
	return err
}

// ErrorResponse is the JSON body written for every failed request
type ErrorResponse struct {
	Status  string                 `json:"status"`
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RenderError writes err as a JSON error response. Unstructured errors become a generic 500.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	var e *Error
	if !errors.As(err, &e) {
		slog.Error("Unhandled error", "path", r.URL.Path, "error", err)
		e = New(ErrCodeInternal, "internal server error")
	}
	render.Status(r, e.HTTPStatusCode())
	render.JSON(w, r, ErrorResponse{
		Status:  "error",
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
