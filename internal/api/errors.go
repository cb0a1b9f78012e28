package api

import "net/http"

// Error represents an API error response. RequestID is attached by the
// response writer so support can correlate failures.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Status    int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeCaseConflict    = "CASE_CONFLICT"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeValidationFail  = "VALIDATION_FAILED"
	ErrCodeSnapshotPartial = "STRIPE_SNAPSHOT_FAILED"
)

// Standard errors
var (
	ErrUnauthorized = &Error{
		Code:    ErrCodeUnauthorized,
		Message: "Invalid or expired token",
		Status:  http.StatusUnauthorized,
	}

	ErrForbidden = &Error{
		Code:    ErrCodeForbidden,
		Message: "Access denied",
		Status:  http.StatusForbidden,
	}

	ErrNotFound = &Error{
		Code:    ErrCodeNotFound,
		Message: "Resource not found",
		Status:  http.StatusNotFound,
	}

	ErrInternalServer = &Error{
		Code:    ErrCodeInternalError,
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
	}

	ErrRateLimited = &Error{
		Code:    ErrCodeRateLimited,
		Message: "Too many requests",
		Status:  http.StatusTooManyRequests,
	}
)

// NewBadRequest creates a bad request error with custom message.
func NewBadRequest(message string) *Error {
	return &Error{
		Code:    ErrCodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewValidationError creates a validation error with custom message.
func NewValidationError(message string) *Error {
	return &Error{
		Code:    ErrCodeValidationFail,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewCaseConflict creates a contention error surfacing the current
// case owner instead of silently overwriting the claim.
func NewCaseConflict(message string) *Error {
	return &Error{
		Code:    ErrCodeCaseConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// NewNotFound creates a not found error with custom message.
func NewNotFound(message string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: message,
		Status:  http.StatusNotFound,
	}
}
