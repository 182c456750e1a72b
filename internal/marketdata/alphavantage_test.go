package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/trading-grow/internal/errors"
	"github.com/trading-grow/internal/ratelimit"
)

type stubBudget struct {
	allow bool
	calls int
	last  ratelimit.Priority
}

func (b *stubBudget) TryConsume(_ context.Context, p ratelimit.Priority) (bool, time.Duration) {
	b.calls++
	b.last = p
	if b.allow {
		return true, 0
	}
	return false, time.Second
}

func newQuoteServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const ibmQuote = `{
	"Global Quote": {
		"01. symbol": "MSFT",
		"05. price": "412.3450",
		"06. volume": "18250000",
		"07. latest trading day": "2026-02-27",
		"08. previous close": "409.1000",
		"10. change percent": "0.7932%"
	}
}`

func TestAlphaVantageProvider_Quote(t *testing.T) {
	srv := newQuoteServer(t, http.StatusOK, ibmQuote)
	budget := &stubBudget{allow: true}
	p := NewAlphaVantageProvider(srv.URL, "test-key", time.Second, budget)

	s, err := p.Lookup(ratelimit.WithPriority(context.Background(), ratelimit.PriorityBackground), "msft")
	require.NoError(t, err)

	assert.Equal(t, "MSFT", s.Symbol)
	assert.Equal(t, "Microsoft Corp.", s.Name)
	assert.Equal(t, "412.35", s.Price.String())
	assert.Equal(t, "0.79", s.ChangePercent.String())
	assert.Equal(t, SourceAlphaVantage, s.Source)
	assert.Equal(t, "18250000", s.Metadata["volume"])
	assert.Equal(t, ratelimit.PriorityBackground, budget.last)
}

func TestAlphaVantageProvider_UnknownSymbol(t *testing.T) {
	srv := newQuoteServer(t, http.StatusOK, `{"Global Quote": {}}`)
	p := NewAlphaVantageProvider(srv.URL, "test-key", time.Second, nil)

	_, err := p.Lookup(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, ErrSymbolNotFound))
}

func TestAlphaVantageProvider_Throttled(t *testing.T) {
	srv := newQuoteServer(t, http.StatusOK, `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`)
	p := NewAlphaVantageProvider(srv.URL, "test-key", time.Second, nil)

	_, err := p.Lookup(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, apperrors.GetHTTPStatusCode(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestAlphaVantageProvider_ServerError(t *testing.T) {
	srv := newQuoteServer(t, http.StatusBadGateway, `upstream down`)
	p := NewAlphaVantageProvider(srv.URL, "test-key", time.Second, nil)

	_, err := p.Lookup(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestAlphaVantageProvider_BudgetExhausted(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	budget := &stubBudget{allow: false}
	p := NewAlphaVantageProvider(srv.URL, "test-key", time.Second, budget)

	_, err := p.Lookup(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, 0, hits, "no request may be sent without budget")
	assert.Equal(t, 1, budget.calls)
	assert.Equal(t, ratelimit.PriorityInteractive, budget.last)
}
