package apperrors

import "errors"

// Common errors
var (
	// Resource errors
	ErrResourceNotFound = errors.New("resource not found")
	ErrConflict         = errors.New("conflict")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionInvalid     = errors.New("invalid session")
	ErrOTPInvalid         = errors.New("invalid verification code")
	ErrOTPExpired         = errors.New("verification code expired")
	ErrResetNotVerified   = errors.New("password reset not verified")

	// Authorization errors
	ErrPermissionDenied = errors.New("permission denied")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Problem errors
var (
	ErrProblemNotFound = NewResourceNotFoundError("problem not found")
	ErrTitleExists     = NewConflictError("a problem with this title already exists")
)

// Student errors
var (
	ErrStudentNotFound = NewResourceNotFoundError("student not found")
	ErrRollNoExists    = NewConflictError("Roll No already exists")
	ErrEmailExists     = NewConflictError("Email already exists")
)

// Admin errors
var (
	ErrAdminNotFound = NewResourceNotFoundError("admin not found")
)

// NewValidationError creates a new custom error for invalid input with a message
func NewValidationError(message string) error {
	return &CustomError{
		Err:     ErrValidationFailed,
		Message: message,
	}
}

// NewResourceNotFoundError creates a new custom error for resource not found with a message
func NewResourceNotFoundError(message string) error {
	return &CustomError{
		Err:     ErrResourceNotFound,
		Message: message,
	}
}

// NewConflictError creates a new custom error for conflict situations with a message
func NewConflictError(message string) error {
	return &CustomError{
		Err:     ErrConflict,
		Message: message,
	}
}

// NewForbiddenError creates a new custom error for permission denied with a message
func NewForbiddenError(message string) error {
	return &CustomError{
		Err:     ErrPermissionDenied,
		Message: message,
	}
}

// NewStorageUnavailableError wraps a connectivity failure so callers can tell
// "bad input" apart from "system down".
func NewStorageUnavailableError(cause error) error {
	return &CustomError{
		Err:     ErrStorageUnavailable,
		Message: "storage unavailable",
		Cause:   cause,
	}
}

// Is returns whether target matches any of the errors in errList
func Is(err, target error, errList ...error) bool {
	if errors.Is(err, target) {
		return true
	}

	for _, e := range errList {
		if errors.Is(err, e) {
			return true
		}
	}

	return false
}

// Message returns the user-facing message carried by a CustomError in the
// chain, or fallback when there is none.
func Message(err error, fallback string) string {
	var ce *CustomError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return fallback
}

// CustomError represents application-specific errors with additional context
type CustomError struct {
	Err     error
	Message string
	// Cause is the underlying driver or IO error, kept for logging.
	Cause error
}

// Error implements error interface
func (e *CustomError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "unknown error"
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements errors.Unwrap interface
func (e *CustomError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// Is lets sentinel CustomErrors (ErrProblemNotFound etc.) match by identity
// while still matching their category sentinel through Unwrap.
func (e *CustomError) Is(target error) bool {
	return e == target
}

// NewCustomError creates a CustomError with underlying error
func NewCustomError(err error, message string) *CustomError {
	return &CustomError{
		Err:     err,
		Message: message,
	}
}
