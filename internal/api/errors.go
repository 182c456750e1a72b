package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/trading-grow/internal/errors"
	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/types"
)

// maxBodyBytes bounds request bodies accepted by parseJSONBody
const maxBodyBytes = 1 << 20

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondServiceError maps err onto its HTTP status and writes it.
// Server side failures are logged and their message replaced.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"category": string(catErr.Category),
		}).Error("request failed")

		message := catErr.Message
		if catErr.Category == apperrors.CategorySystem && catErr.StatusCode == http.StatusInternalServerError {
			message = "An internal error occurred"
		}
		respondError(w, catErr.StatusCode, catErr.Code, message, nil)
		return
	}

	if retryAfter := catErr.RetryAfter(); retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.NewInvalidParameterError("body", "request body is empty")
		}
		return apperrors.NewInvalidParameterError("body", "malformed JSON")
	}
	return nil
}

// Common error codes
const (
	ErrCodeInvalidInput  = types.CodeInvalidInput
	ErrCodeInvalidToken  = "INVALID_TOKEN"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
)
