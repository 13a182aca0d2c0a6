// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal   = "INTERNAL_ERROR"
	CodeDatabase   = "DATABASE_ERROR"
	CodeConnection = "CONNECTION_ERROR" // retryable
	CodeTimeout    = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business rule violations (422)
	CodeBusinessRule           = "BUSINESS_RULE_VIOLATION"
	CodeMissingDefaults        = "MISSING_DEFAULTS"
	CodeInvalidDefaults        = "INVALID_DEFAULTS"
	CodeFieldCountExceeded     = "FIELD_COUNT_EXCEEDED"
	CodeBatchSizeExceeded      = "BATCH_SIZE_EXCEEDED"
	CodeBatchValidation        = "BATCH_VALIDATION_FAILED"
	CodeEntityMismatch         = "ENTITY_MISMATCH"
	CodeMetadataInvalid        = "METADATA_INVALID"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict    = "CONFLICT" // retryable (serialization failure, deadlock)
	CodeDuplicate   = "DUPLICATE_ENTRY"
	CodeReferential = "REFERENTIAL_VIOLATION"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, affected keys, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Retryable marks transient storage failures the caller may retry
	Retryable bool `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewFieldValidation creates a validation error carrying a field-key -> messages
// map for form binding by collaborators.
func NewFieldValidation(message string, fieldErrors map[string][]string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"fields": fieldErrors},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewMissingDefaults reports newly-required fields without a usable default.
func NewMissingDefaults(keys []string) *AppError {
	return &AppError{
		Code:       CodeMissingDefaults,
		Message:    "Default values are required for newly required fields",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"keys": keys},
	}
}

// NewInvalidDefaults reports supplied defaults that fail type or enum checks.
func NewInvalidDefaults(keys []string) *AppError {
	return &AppError{
		Code:       CodeInvalidDefaults,
		Message:    "Supplied default values are invalid for their field types",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"keys": keys},
	}
}

// NewFieldCountExceeded reports an entity definition with too many fields.
func NewFieldCountExceeded(count, max int) *AppError {
	return &AppError{
		Code:       CodeFieldCountExceeded,
		Message:    fmt.Sprintf("Entity may define at most %d fields", max),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"count": count, "max": max},
	}
}

// NewBatchSizeExceeded reports a batch outside the allowed bounds.
func NewBatchSizeExceeded(size, max int) *AppError {
	return &AppError{
		Code:       CodeBatchSizeExceeded,
		Message:    fmt.Sprintf("Batch must contain between 1 and %d items", max),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"size": size, "max": max},
	}
}

// NewEntityMismatch reports a record that belongs to a different entity than
// the one named by the operation.
func NewEntityMismatch(recordID, expectedEntity any) *AppError {
	return &AppError{
		Code:       CodeEntityMismatch,
		Message:    "Record belongs to a different entity",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"record_id": recordID, "expected_entity": expectedEntity},
	}
}

// NewMetadataInvalid reports rejected record metadata.
func NewMetadataInvalid(reason string) *AppError {
	return &AppError{
		Code:       CodeMetadataInvalid,
		Message:    "Record metadata is invalid",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"reason": reason},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewConflict creates a retryable conflict error (409) for serialization
// failures and deadlocks surfaced by the store.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Retryable:  true,
	}
}

// NewConnection creates a retryable connection failure error.
func NewConnection(err error) *AppError {
	return &AppError{
		Code:       CodeConnection,
		Message:    "Database connection failed",
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Err:        err,
	}
}

// NewReferential creates a referential integrity violation error.
func NewReferential(message string) *AppError {
	return &AppError{
		Code:       CodeReferential,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsRetryable reports whether the error is transient and safe to retry.
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable
	}
	return false
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeConcurrentModification
	}
	return false
}
