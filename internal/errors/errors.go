// Package errors maps domain errors onto HTTP-facing categories.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/trading-grow/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryUserInput      ErrorCategory = "user_input"
	CategorySystem         ErrorCategory = "system"
	CategoryProvider       ErrorCategory = "provider"
	CategoryValidation     ErrorCategory = "validation"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryAuthorization  ErrorCategory = "authorization"
	CategoryNotFound       ErrorCategory = "not_found"
	CategoryConflict       ErrorCategory = "conflict"
	CategoryRateLimit      ErrorCategory = "rate_limit"
)

// CategorizedError is an error with the category and HTTP status it is reported with
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// RetryAfter returns the seconds a client should wait, or 0 when not throttled
func (e *CategorizedError) RetryAfter() int {
	if secs, ok := e.Details["retryAfter"].(int); ok && secs > 0 {
		return secs
	}
	return 0
}

func newError(category ErrorCategory, status int, code, message string, details map[string]interface{}) *CategorizedError {
	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       code,
		Message:    message,
		Details:    details,
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return newError(CategoryValidation, http.StatusBadRequest, "INVALID_PARAMETER",
		fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		map[string]interface{}{"parameter": param, "reason": reason})
}

// NewAuthenticationRequiredError is returned when a route needs a principal and none was resolved
func NewAuthenticationRequiredError(message string) *CategorizedError {
	return newError(CategoryAuthentication, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", message, nil)
}

func NewForbiddenError(message string) *CategorizedError {
	return newError(CategoryAuthorization, http.StatusForbidden, types.CodeForbidden, message, nil)
}

// NewRateLimitError reports a caller over its tier's request budget
func NewRateLimitError(tier string, retryAfter int) *CategorizedError {
	return newError(CategoryRateLimit, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "rate limit exceeded",
		map[string]interface{}{"tier": tier, "retryAfter": retryAfter})
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	err := newError(CategorySystem, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
	err.Cause = cause
	return err
}

// NewServiceUnavailableError reports a backing store or dependency that cannot be reached
func NewServiceUnavailableError(service string) *CategorizedError {
	return newError(CategorySystem, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
		fmt.Sprintf("service unavailable: %s", service),
		map[string]interface{}{"service": service})
}

// NewProviderError wraps a failed market data call
func NewProviderError(provider string, cause error) *CategorizedError {
	err := newError(CategoryProvider, http.StatusBadGateway, "PROVIDER_ERROR",
		fmt.Sprintf("market data provider error: %s", provider),
		map[string]interface{}{"provider": provider})
	err.Cause = cause
	return err
}

// NewProviderRateLimitError reports an exhausted provider call budget
func NewProviderRateLimitError(provider string) *CategorizedError {
	return newError(CategoryProvider, http.StatusTooManyRequests, "PROVIDER_RATE_LIMIT",
		fmt.Sprintf("market data provider rate limit exceeded: %s", provider),
		map[string]interface{}{"provider": provider})
}

// Categorize categorizes an existing error.
// Wrapped errors are unwrapped so that a ServiceError returned through several
// fmt.Errorf layers still maps to its own status code.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

type statusMapping struct {
	category ErrorCategory
	status   int
}

var serviceErrorStatus = map[string]statusMapping{
	types.CodeInvalidInput:            {CategoryValidation, http.StatusBadRequest},
	types.CodeInvalidTier:             {CategoryValidation, http.StatusBadRequest},
	types.CodeInvalidCredentials:      {CategoryAuthentication, http.StatusUnauthorized},
	types.CodeUnauthorized:            {CategoryAuthorization, http.StatusForbidden},
	types.CodeForbidden:               {CategoryAuthorization, http.StatusForbidden},
	types.CodeRequestNotFound:         {CategoryNotFound, http.StatusNotFound},
	types.CodeWatchlistNotFound:       {CategoryNotFound, http.StatusNotFound},
	types.CodeAccountNotFound:         {CategoryNotFound, http.StatusNotFound},
	types.CodeStockNotFound:           {CategoryNotFound, http.StatusNotFound},
	types.CodeSectorNotFound:          {CategoryNotFound, http.StatusNotFound},
	types.CodeDuplicateEmail:          {CategoryConflict, http.StatusConflict},
	types.CodeAlreadyAtTier:           {CategoryConflict, http.StatusConflict},
	types.CodeDuplicatePendingRequest: {CategoryConflict, http.StatusConflict},
	types.CodeRequestNotPending:       {CategoryConflict, http.StatusConflict},
	types.CodeDuplicateSymbol:         {CategoryConflict, http.StatusConflict},
	types.CodeDuplicateStock:          {CategoryConflict, http.StatusConflict},
	types.CodeSymbolLookupFailed:      {CategoryUserInput, http.StatusUnprocessableEntity},
}

// Unknown codes are treated as internal failures
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	mapping, ok := serviceErrorStatus[err.Code]
	if !ok {
		mapping = statusMapping{CategorySystem, http.StatusInternalServerError}
	}
	return newError(mapping.category, mapping.status, err.Code, err.Message, err.Details)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether repeating the call may succeed. Provider
// throttling is excluded: retrying only burns more of the call budget.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider:
		return catErr.StatusCode != http.StatusTooManyRequests
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}
