package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/trading-grow/internal/errors"
	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/ratelimit"
	"github.com/trading-grow/internal/types"
)

// CallBudget gates outbound provider calls. *ratelimit.CallBudget implements it.
type CallBudget interface {
	TryConsume(ctx context.Context, priority ratelimit.Priority) (bool, time.Duration)
}

// AlphaVantageProvider reads GLOBAL_QUOTE from the Alpha Vantage REST API
type AlphaVantageProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	budget  CallBudget
}

// NewAlphaVantageProvider creates a provider. budget may be nil to disable call accounting.
func NewAlphaVantageProvider(baseURL, apiKey string, timeout time.Duration, budget CallBudget) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		budget:  budget,
	}
}

// globalQuoteResponse is the GLOBAL_QUOTE payload. Throttled responses carry
// Note or Information instead of a quote.
type globalQuoteResponse struct {
	Quote struct {
		Symbol           string `json:"01. symbol"`
		Price            string `json:"05. price"`
		Volume           string `json:"06. volume"`
		LatestTradingDay string `json:"07. latest trading day"`
		PreviousClose    string `json:"08. previous close"`
		ChangePercent    string `json:"10. change percent"`
	} `json:"Global Quote"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// Lookup implements Provider
func (p *AlphaVantageProvider) Lookup(ctx context.Context, symbol string) (*Snapshot, error) {
	symbol = types.CanonicalSymbol(symbol)
	if !types.IsValidSymbol(symbol) {
		return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, symbol)
	}

	if p.budget != nil {
		priority := ratelimit.PriorityFromContext(ctx)
		if ok, wait := p.budget.TryConsume(ctx, priority); !ok {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"symbol":   symbol,
				"priority": priority.String(),
				"wait":     wait.String(),
			}).Debug("alpha vantage call budget exhausted")
			return nil, apperrors.NewProviderRateLimitError(SourceAlphaVantage)
		}
	}

	body, err := p.get(ctx, url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {symbol},
		"apikey":   {p.apiKey},
	})
	if err != nil {
		return nil, err
	}

	var resp globalQuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewProviderError(SourceAlphaVantage, fmt.Errorf("failed to decode quote: %w", err))
	}
	if resp.Note != "" || resp.Information != "" {
		return nil, apperrors.NewProviderRateLimitError(SourceAlphaVantage)
	}
	if resp.ErrorMessage != "" || resp.Quote.Symbol == "" {
		return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, symbol)
	}

	return p.toSnapshot(symbol, &resp)
}

func (p *AlphaVantageProvider) get(ctx context.Context, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.NewProviderError(SourceAlphaVantage, fmt.Errorf("failed to make request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewProviderError(SourceAlphaVantage, fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.NewProviderRateLimitError(SourceAlphaVantage)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.NewProviderError(SourceAlphaVantage, fmt.Errorf("HTTP error: %d", resp.StatusCode))
	}
	return body, nil
}

func (p *AlphaVantageProvider) toSnapshot(symbol string, resp *globalQuoteResponse) (*Snapshot, error) {
	price, err := decimal.NewFromString(resp.Quote.Price)
	if err != nil {
		return nil, apperrors.NewProviderError(SourceAlphaVantage, fmt.Errorf("invalid price %q: %w", resp.Quote.Price, err))
	}
	change, err := decimal.NewFromString(strings.TrimSuffix(resp.Quote.ChangePercent, "%"))
	if err != nil {
		change = decimal.Zero
	}

	asOf := time.Now().UTC()
	if day, err := time.Parse("2006-01-02", resp.Quote.LatestTradingDay); err == nil {
		asOf = day
	}

	name, sector := symbol, ""
	if c, ok := companies[symbol]; ok {
		name, sector = c.name, c.sector
	}

	metadata := map[string]string{}
	if resp.Quote.Volume != "" {
		metadata["volume"] = resp.Quote.Volume
	}
	if resp.Quote.PreviousClose != "" {
		metadata["previousClose"] = resp.Quote.PreviousClose
	}

	return &Snapshot{
		Symbol:        symbol,
		Name:          name,
		Sector:        sector,
		Price:         price.Round(2),
		ChangePercent: change.Round(2),
		Source:        SourceAlphaVantage,
		AsOf:          asOf,
		Metadata:      metadata,
	}, nil
}
