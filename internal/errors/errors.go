// Package errors classifies engine, storage and query errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/amm-analytics/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryMissingEntity is a required ledger entity that is absent
	CategoryMissingEntity ErrorCategory = "missing_entity"
	// CategoryExternalCall is a collaborator call (contract read) that failed or reverted
	CategoryExternalCall ErrorCategory = "external_call"
	// CategoryNullDerivedValue is a token whose derived price was never computed
	CategoryNullDerivedValue ErrorCategory = "null_derived_value"
	// CategoryStorage represents ledger backend errors
	CategoryStorage ErrorCategory = "storage"
	// CategoryValidation represents malformed input or configuration
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents query lookups that found nothing
	CategoryNotFound ErrorCategory = "not_found"
	// CategorySystem represents everything else
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Event-local preconditions. Handlers return these to abandon the current event.

// NewMissingEntityError reports an absent Pair/Token/Bundle/Factory/Transaction/Mint/Burn
func NewMissingEntityError(kind string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMissingEntity,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "MISSING_ENTITY",
		Message:    fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]interface{}{
			"kind": kind,
			"id":   id,
		},
	}
}

// NewExternalCallError reports a failed or reverted collaborator call
func NewExternalCallError(call string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryExternalCall,
		StatusCode: http.StatusBadGateway,
		Code:       "EXTERNAL_CALL_FAILED",
		Message:    fmt.Sprintf("external call failed: %s", call),
		Cause:      cause,
		Details: map[string]interface{}{
			"call": call,
		},
	}
}

// NewNullDerivedValueError reports a token that has not been priced yet
func NewNullDerivedValueError(token string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNullDerivedValue,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "NULL_DERIVED_VALUE",
		Message:    fmt.Sprintf("token has no derived price: %s", token),
		Details: map[string]interface{}{
			"token": token,
		},
	}
}

// NewStorageError wraps a ledger backend failure
func NewStorageError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStorage,
		StatusCode: http.StatusInternalServerError,
		Code:       "STORAGE_ERROR",
		Message:    fmt.Sprintf("storage error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewValidationError creates a validation error
func NewValidationError(field string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", field, reason),
		Details: map[string]interface{}{
			"parameter": field,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error for query lookups
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	return NewInternalError("unexpected error", err)
}

// CategoryOf returns the category of err, or "" for nil
func CategoryOf(err error) ErrorCategory {
	if catErr := Categorize(err); catErr != nil {
		return catErr.Category
	}
	return ""
}

// IsSkippable reports whether err only abandons the current event.
// Missing entities, failed collaborator calls and unpriced tokens never halt the pipeline.
func IsSkippable(err error) bool {
	switch CategoryOf(err) {
	case CategoryMissingEntity, CategoryExternalCall, CategoryNullDerivedValue:
		return true
	default:
		return false
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	switch CategoryOf(err) {
	case CategoryStorage, CategoryExternalCall:
		return true
	default:
		return false
	}
}
