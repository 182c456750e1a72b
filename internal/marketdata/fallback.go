package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/trading-grow/internal/circuitbreaker"
	apperrors "github.com/trading-grow/internal/errors"
	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/metrics"
	"github.com/trading-grow/internal/retry"
)

// FallbackConfig configures a FallbackProvider
type FallbackConfig struct {
	// Source labels the primary provider in logs and metrics
	Source string
	// Timeout bounds each primary attempt
	Timeout time.Duration
	Retry   *retry.Config
	Breaker *circuitbreaker.Config
	Metrics *metrics.Metrics
}

// FallbackProvider asks the primary provider first and answers from the
// fallback provider when the primary times out, errors, or its breaker is
// open. A not-found answer from the primary is final.
type FallbackProvider struct {
	primary  Provider
	fallback Provider
	source   string
	timeout  time.Duration
	retry    retry.Config
	breaker  *circuitbreaker.CircuitBreaker
	metrics  *metrics.Metrics
}

// NewFallbackProvider creates a fallback provider
func NewFallbackProvider(primary, fallback Provider, cfg FallbackConfig) *FallbackProvider {
	if cfg.Source == "" {
		cfg.Source = "primary"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	retryCfg := retry.DefaultConfig()
	if cfg.Retry != nil {
		retryCfg = cfg.Retry
	}
	rc := *retryCfg
	rc.Retryable = isTransient

	breakerCfg := circuitbreaker.DefaultConfig(cfg.Source)
	if cfg.Breaker != nil {
		breakerCfg = cfg.Breaker
	}
	bc := *breakerCfg
	bc.IsFailure = func(err error) bool {
		return err != nil && !errors.Is(err, ErrSymbolNotFound)
	}

	return &FallbackProvider{
		primary:  primary,
		fallback: fallback,
		source:   cfg.Source,
		timeout:  cfg.Timeout,
		retry:    rc,
		breaker:  circuitbreaker.NewCircuitBreaker(&bc),
		metrics:  cfg.Metrics,
	}
}

// isTransient reports whether a primary failure is worth another attempt
func isTransient(err error) bool {
	if errors.Is(err, ErrSymbolNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || apperrors.IsRetryable(err)
}

// Lookup implements Provider
func (p *FallbackProvider) Lookup(ctx context.Context, symbol string) (*Snapshot, error) {
	start := time.Now()

	var snapshot *Snapshot
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, &p.retry, func(ctx context.Context, attempt int) error {
			attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			s, err := p.primary.Lookup(attemptCtx, symbol)
			if err != nil {
				return err
			}
			snapshot = s
			return nil
		})
	})

	switch {
	case err == nil:
		p.metrics.ObserveLookup(p.source, metrics.OutcomeSuccess, time.Since(start))
		return snapshot, nil
	case errors.Is(err, ErrSymbolNotFound):
		p.metrics.ObserveLookup(p.source, metrics.OutcomeNotFound, time.Since(start))
		return nil, err
	case ctx.Err() != nil:
		p.metrics.ObserveLookup(p.source, metrics.OutcomeError, time.Since(start))
		return nil, ctx.Err()
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"symbol":  symbol,
		"source":  p.source,
		"breaker": string(p.breaker.State()),
	}).WithError(err).Warn("market data lookup failed, using fallback")
	p.metrics.ObserveLookup(p.source, metrics.OutcomeFallback, time.Since(start))

	return p.fallback.Lookup(ctx, symbol)
}

// BreakerState returns the state of the primary's circuit breaker
func (p *FallbackProvider) BreakerState() circuitbreaker.State {
	return p.breaker.State()
}
