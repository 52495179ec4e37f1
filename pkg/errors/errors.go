package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios. Messages carry entity ids only,
// never lead contact details.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	ErrInvalidTransition           = New("INVALID_TRANSITION", http.StatusConflict, "publication transition not allowed")
	ErrInvalidRunTransition        = New("INVALID_RUN_TRANSITION", http.StatusConflict, "course run transition not allowed")
	ErrInvalidLeadTransition       = New("INVALID_LEAD_TRANSITION", http.StatusConflict, "lead transition not allowed")
	ErrInvalidEnrollmentTransition = New("INVALID_ENROLLMENT_TRANSITION", http.StatusConflict, "enrollment transition not allowed")
	ErrLeadNotEligible             = New("LEAD_NOT_ELIGIBLE", http.StatusConflict, "lead is not eligible for conversion")
	ErrEligibilityFailed           = New("ELIGIBILITY_CHECK_FAILED", http.StatusConflict, "one or more eligibility checks failed")
	ErrCapacityExceeded            = New("CAPACITY_EXCEEDED", http.StatusConflict, "course run has no remaining seats")
	ErrSlugExhausted               = New("SLUG_EXHAUSTED", http.StatusConflict, "could not generate a unique slug")
	ErrGraduationBlocked           = New("GRADUATION_BLOCKED", http.StatusConflict, "completion criteria not met")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
