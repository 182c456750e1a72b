// Package main provides the API server entry point for the trading-grow service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trading-grow/internal/api"
	"github.com/trading-grow/internal/auth"
	"github.com/trading-grow/internal/config"
	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/marketdata"
	"github.com/trading-grow/internal/metrics"
	"github.com/trading-grow/internal/ratelimit"
	"github.com/trading-grow/internal/service"
	"github.com/trading-grow/internal/storage"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, logging.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   true,
	})
	logger.WithFields(map[string]interface{}{
		"level":   cfg.Logging.Level,
		"format":  cfg.Logging.Format,
		"version": version,
	}).Info("Structured logging initialized")

	if cfg.Auth.MockAuthEnabled {
		logger.Warn("Mock authentication is enabled; X-User-ID is trusted without credentials")
	}

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redisCache, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()

	readiness := map[string]api.Pinger{
		"postgres": postgres,
		"redis":    redisCache,
	}

	// Price history is optional; every consumer accepts a nil interface
	var (
		priceRecorder marketdata.PriceRecorder
		priceHistory  service.PriceHistoryRepository
	)
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()

		historyRepo := storage.NewPriceHistoryRepository(clickhouse)
		priceRecorder = historyRepo
		priceHistory = historyRepo
		readiness["clickhouse"] = clickhouse
	}

	logger.Info("Database connections established")

	appMetrics := metrics.New("trading_grow")

	provider, budget, err := buildProvider(cfg, redisCache, priceRecorder, appMetrics)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize market data provider")
	}

	// Initialize repositories
	accountRepo := storage.NewAccountRepository(postgres)
	subscriptionRepo := storage.NewSubscriptionRepository(postgres)
	watchlistRepo := storage.NewWatchlistRepository(postgres)
	catalogRepo := storage.NewCatalogRepository(postgres)

	logger.Info("Initializing services...")

	accountService := service.NewAccountService(accountRepo, auth.NewHasher(cfg.Auth.BcryptCost))
	subscriptionService := service.NewSubscriptionService(subscriptionRepo, appMetrics)
	watchlistService := service.NewWatchlistService(watchlistRepo, provider, cfg.MarketData.SeedConcurrency, appMetrics)
	catalogService := service.NewCatalogService(catalogRepo, provider, priceHistory)

	logger.Info("Services initialized")

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Version:         version,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MockAuthEnabled: cfg.Auth.MockAuthEnabled,
		FreeTierRPM:     cfg.RateLimit.FreeTier,
		MediumTierRPM:   cfg.RateLimit.MediumTier,
		ProTierRPM:      cfg.RateLimit.ProTier,
	}

	deps := api.Dependencies{
		Accounts:        accountService,
		Subscriptions:   subscriptionService,
		Watchlists:      watchlistService,
		Catalog:         catalogService,
		Tokens:          auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Revocations:     storage.NewTokenRevocationStore(redisCache),
		ReadinessChecks: readiness,
		Metrics:         appMetrics,
	}
	if budget != nil {
		deps.Budget = budget
	}

	server := api.NewServer(serverConfig, deps)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down server...")
	case err := <-serverErr:
		logger.WithError(err).Error("Server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// buildProvider composes the market data chain:
// cache -> price recording -> Alpha Vantage with synthetic fallback.
// Without an API key the synthetic provider answers every lookup.
func buildProvider(
	cfg *config.Config,
	redisCache *storage.RedisCache,
	recorder marketdata.PriceRecorder,
	m *metrics.Metrics,
) (marketdata.Provider, *ratelimit.CallBudget, error) {
	synthetic := marketdata.NewSyntheticProvider()

	var (
		provider marketdata.Provider = synthetic
		budget   *ratelimit.CallBudget
	)
	if cfg.MarketData.AlphaVantageAPIKey != "" {
		var err error
		budget, err = ratelimit.NewCallBudget(&ratelimit.CallBudgetConfig{
			Redis:       redisCache.Client(),
			TotalBudget: int(cfg.MarketData.CallsPerMinute),
			WindowSize:  time.Minute,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create call budget: %w", err)
		}

		alphaVantage := marketdata.NewAlphaVantageProvider(
			cfg.MarketData.AlphaVantageBaseURL,
			cfg.MarketData.AlphaVantageAPIKey,
			cfg.MarketData.Timeout,
			budget,
		)
		provider = marketdata.NewFallbackProvider(alphaVantage, synthetic, marketdata.FallbackConfig{
			Source:  marketdata.SourceAlphaVantage,
			Timeout: cfg.MarketData.Timeout,
			Metrics: m,
		})
		logging.WithField("calls_per_minute", cfg.MarketData.CallsPerMinute).Info("Alpha Vantage provider enabled")
	} else {
		logging.Info("No Alpha Vantage API key configured; using synthetic market data")
	}

	if recorder != nil {
		provider = marketdata.NewRecordingProvider(provider, recorder)
	}

	cache := storage.NewCacheService(redisCache, cfg.Cache.SnapshotTTL)
	return marketdata.NewCachedProvider(provider, cache, m), budget, nil
}
