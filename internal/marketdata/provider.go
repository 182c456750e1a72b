// Package marketdata resolves instrument symbols into price snapshots.
//
// Providers compose: a live provider is wrapped by FallbackProvider for
// timeouts and breaker handling, then by CachedProvider and RecordingProvider.
// Every layer implements Provider, so callers never know which source answered.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot sources
const (
	SourceSynthetic    = "synthetic"
	SourceAlphaVantage = "alphavantage"
)

// ErrSymbolNotFound is returned when a provider does not know the symbol.
// It is never retried and never triggers a fallback.
var ErrSymbolNotFound = errors.New("symbol not found")

// Snapshot is a point-in-time price read for a symbol
type Snapshot struct {
	Symbol        string            `json:"symbol"`
	Name          string            `json:"name"`
	Sector        string            `json:"sector,omitempty"`
	Price         decimal.Decimal   `json:"price"`
	ChangePercent decimal.Decimal   `json:"changePercent"`
	Source        string            `json:"source"`
	AsOf          time.Time         `json:"asOf"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Provider looks up a snapshot for a canonical symbol
type Provider interface {
	Lookup(ctx context.Context, symbol string) (*Snapshot, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context, symbol string) (*Snapshot, error)

// Lookup implements Provider
func (f ProviderFunc) Lookup(ctx context.Context, symbol string) (*Snapshot, error) {
	return f(ctx, symbol)
}
