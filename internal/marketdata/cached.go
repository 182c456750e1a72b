package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/metrics"
	"github.com/trading-grow/internal/storage"
	"github.com/trading-grow/internal/types"
)

// missingSymbolTTL is how long an unknown symbol is remembered
const missingSymbolTTL = 10 * time.Minute

// CachedProvider serves snapshots from Redis and remembers unknown symbols.
// Cache failures degrade to a direct lookup.
type CachedProvider struct {
	next    Provider
	cache   *storage.CacheService
	metrics *metrics.Metrics
}

// NewCachedProvider wraps next with a snapshot cache
func NewCachedProvider(next Provider, cache *storage.CacheService, m *metrics.Metrics) *CachedProvider {
	return &CachedProvider{next: next, cache: cache, metrics: m}
}

// Lookup implements Provider
func (p *CachedProvider) Lookup(ctx context.Context, symbol string) (*Snapshot, error) {
	start := time.Now()
	symbol = types.CanonicalSymbol(symbol)
	logger := logging.FromContext(ctx).WithField("symbol", symbol)

	var cached Snapshot
	hit, err := p.cache.Get(ctx, p.cache.SnapshotKey(symbol), &cached)
	if err != nil {
		logger.WithError(err).Debug("snapshot cache read failed")
	}
	if hit {
		p.metrics.ObserveLookup("cache", metrics.OutcomeCacheHit, time.Since(start))
		return &cached, nil
	}

	missing, err := p.cache.Exists(ctx, p.cache.MissingSymbolKey(symbol))
	if err == nil && missing {
		p.metrics.ObserveLookup("cache", metrics.OutcomeNotFound, time.Since(start))
		return nil, ErrSymbolNotFound
	}

	snapshot, err := p.next.Lookup(ctx, symbol)
	if err != nil {
		if errors.Is(err, ErrSymbolNotFound) {
			if cacheErr := p.cache.SetWithTTL(ctx, p.cache.MissingSymbolKey(symbol), true, missingSymbolTTL); cacheErr != nil {
				logger.WithError(cacheErr).Debug("failed to remember missing symbol")
			}
		}
		return nil, err
	}

	if err := p.cache.Set(ctx, p.cache.SnapshotKey(symbol), snapshot); err != nil {
		logger.WithError(err).Debug("snapshot cache write failed")
	}
	return snapshot, nil
}

// Forget drops the cached snapshot and any missing-symbol marker of symbol,
// so the next lookup reaches the provider
func (p *CachedProvider) Forget(ctx context.Context, symbol string) error {
	symbol = types.CanonicalSymbol(symbol)
	return p.cache.Invalidate(ctx, p.cache.SnapshotKey(symbol), p.cache.MissingSymbolKey(symbol))
}
