package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/amm-analytics/internal/errors"
	"github.com/amm-analytics/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Error: types.ServiceError{Code: code, Message: message, Details: details},
	})
}

// respondJSON writes data as the response body. Entities carry decimals,
// which encode as strings.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data) // client went away
	}
}

// Common error codes
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// respondServiceError maps a categorized error to its HTTP response.
// Internal details are logged, never sent to the client.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	catErr := apperrors.Categorize(err)
	switch catErr.Category {
	case apperrors.CategoryValidation:
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, catErr.Message, catErr.Details)
	case apperrors.CategoryNotFound:
		respondError(w, http.StatusNotFound, ErrCodeNotFound, catErr.Message, catErr.Details)
	default:
		s.logger.WithError(err).WithField("category", catErr.Category).Error("Request failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil)
	}
}
