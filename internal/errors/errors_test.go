package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trading-grow/internal/types"
)

func TestCategorize_DomainErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{types.ErrDuplicateEmail, http.StatusConflict},
		{types.ErrInvalidCredentials, http.StatusUnauthorized},
		{types.ErrInvalidTier, http.StatusBadRequest},
		{types.ErrAlreadyAtTier, http.StatusConflict},
		{types.ErrDuplicatePendingRequest, http.StatusConflict},
		{types.ErrRequestNotFound, http.StatusNotFound},
		{types.ErrRequestNotPending, http.StatusConflict},
		{types.ErrWatchlistNotFound, http.StatusNotFound},
		{types.ErrUnauthorized, http.StatusForbidden},
		{types.ErrDuplicateSymbol, http.StatusConflict},
		{types.ErrSymbolLookupFailed, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		svcErr := tt.err.(*types.ServiceError)
		t.Run(svcErr.Code, func(t *testing.T) {
			wrapped := fmt.Errorf("layer two: %w", fmt.Errorf("layer one: %w", tt.err))

			catErr := Categorize(wrapped)
			require.NotNil(t, catErr)
			assert.Equal(t, tt.status, catErr.StatusCode)
			assert.Equal(t, svcErr.Code, catErr.Code)
			assert.Equal(t, svcErr.Message, catErr.Message)
		})
	}
}

func TestCategorize_UnknownErrorIsInternal(t *testing.T) {
	catErr := Categorize(stderrors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, catErr.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", catErr.Code)
	assert.Nil(t, Categorize(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewProviderError("alphavantage", stderrors.New("502"))))
	assert.False(t, IsRetryable(NewProviderRateLimitError("alphavantage")))
	assert.True(t, IsRetryable(NewServiceUnavailableError("postgres")))
	assert.False(t, IsRetryable(types.ErrDuplicateSymbol))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 7, NewRateLimitError("free", 7).RetryAfter())
	assert.Zero(t, NewRateLimitError("free", 0).RetryAfter())
	assert.Zero(t, NewServiceUnavailableError("redis").RetryAfter())
}

func TestCategorize_PreservesCategorizedError(t *testing.T) {
	original := NewProviderError("alphavantage", stderrors.New("502"))
	wrapped := fmt.Errorf("quote AAPL: %w", original)

	assert.Same(t, original, Categorize(wrapped))
	assert.Equal(t, http.StatusBadGateway, GetHTTPStatusCode(wrapped))
	assert.ErrorIs(t, wrapped, original.Cause)
}
