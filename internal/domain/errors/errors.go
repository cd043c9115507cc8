package errors

import (
	"fmt"
	"net/http"
)

// AppError is a custom error type for application errors
type AppError struct {
	Code       string
	Message    string
	StatusCode int // Same rule as HTTP status codes
	Err        error
	Details    map[string]interface{}
}

// Error returns a string representation of the error
func (e AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is implements the errors.Is interface
func (e AppError) Is(target error) bool {
	if target, ok := target.(AppError); ok {
		return target.Code == e.Code
	}
	return false
}

// Unwrap returns the underlying error
func (e AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error
func (e AppError) WithDetails(details map[string]interface{}) AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error
func (e AppError) WithDetail(key string, value interface{}) AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewValidationError creates a new validation error
func NewValidationError(message string) AppError {
	return AppError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewInvalidInputError creates a new invalid input error
func NewInvalidInputError(message string, err error) AppError {
	return AppError{
		Code:       "INVALID_INPUT",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) AppError {
	return AppError{
		Code:       "NOT_FOUND",
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) AppError {
	return AppError{
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInsufficientFundsError creates an error for a withdrawal that would
// drive a client's trust balance below zero
func NewInsufficientFundsError(message string) AppError {
	return AppError{
		Code:       "INSUFFICIENT_FUNDS",
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewAccountClosedError creates an error for operations against a closed trust account
func NewAccountClosedError(message string) AppError {
	return AppError{
		Code:       "ACCOUNT_CLOSED",
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewInvalidStateTransitionError creates an error for an illegal transaction status change
func NewInvalidStateTransitionError(message string) AppError {
	return AppError{
		Code:       "INVALID_STATE_TRANSITION",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewReconciliationLockError creates an error for attempts to mutate history
// inside a completed reconciliation period
func NewReconciliationLockError(message string) AppError {
	return AppError{
		Code:       "RECONCILIATION_LOCKED",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewReconciliationInProgressError creates an error for starting a
// reconciliation while another is open for the same account
func NewReconciliationInProgressError(message string) AppError {
	return AppError{
		Code:       "RECONCILIATION_IN_PROGRESS",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewUnreconciledDifferenceError creates an error for completing a
// reconciliation with a nonzero difference
func NewUnreconciledDifferenceError(message string) AppError {
	return AppError{
		Code:       "UNRECONCILED_DIFFERENCE",
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewThreeWayDiscrepancyError creates an error for a three-way reconciliation
// run whose balances disagree
func NewThreeWayDiscrepancyError(message string) AppError {
	return AppError{
		Code:       "THREE_WAY_DISCREPANCY",
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewStorageError creates an error for a storage-layer failure; the enclosing
// operation is fully rolled back
func NewStorageError(message string, err error) AppError {
	return AppError{
		Code:       "STORAGE_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) AppError {
	return AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
