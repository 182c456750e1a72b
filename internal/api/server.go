// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/trading-grow/internal/auth"
	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/marketdata"
	"github.com/trading-grow/internal/metrics"
	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/ratelimit"
	"github.com/trading-grow/internal/service"
	"github.com/trading-grow/internal/storage"
	"github.com/trading-grow/internal/types"
)

// Service interfaces for dependency injection and testing

// AccountServiceInterface defines the account operations used by the API
type AccountServiceInterface interface {
	CreateAccount(ctx context.Context, input *service.CreateAccountInput) (*models.Account, error)
	VerifyCredentials(ctx context.Context, email, password string) (*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context, limit, offset int) ([]*models.Account, error)
	TierCounts(ctx context.Context) (*models.TierCounts, error)
	SetTier(ctx context.Context, accountID string, tier types.Tier) (*models.Account, error)
	SetAdmin(ctx context.Context, accountID string, isAdmin bool) (*models.Account, error)
	SetDisplayName(ctx context.Context, accountID, displayName string) (*models.Account, error)
	BulkUpgrade(ctx context.Context, fromTier, toTier types.Tier) (int64, error)
}

// SubscriptionServiceInterface defines the subscription request operations used by the API
type SubscriptionServiceInterface interface {
	Submit(ctx context.Context, account *models.Account, requestedTier types.Tier) (*models.SubscriptionRequest, error)
	Approve(ctx context.Context, requestID string) (*storage.DecisionResult, error)
	Reject(ctx context.Context, requestID string) (*models.SubscriptionRequest, error)
	ListPending(ctx context.Context) ([]*models.SubscriptionRequest, error)
	ListForAccount(ctx context.Context, accountID string) ([]*models.SubscriptionRequest, error)
}

// WatchlistServiceInterface defines the watchlist operations used by the API
type WatchlistServiceInterface interface {
	GetOrCreateDefaults(ctx context.Context, accountID string) (map[types.Category]*models.Watchlist, error)
	ListWatchlists(ctx context.Context, accountID string) ([]*models.Watchlist, error)
	AddStock(ctx context.Context, principal auth.Principal, watchlistID, symbol string) (*models.StockEntry, error)
	RemoveStock(ctx context.Context, principal auth.Principal, watchlistID, symbol string) error
}

// CatalogServiceInterface defines the stock catalogue operations used by the API
type CatalogServiceInterface interface {
	List(ctx context.Context) ([]*models.CatalogStock, error)
	ByIndustry(ctx context.Context) (service.IndustryIndex, error)
	Search(ctx context.Context, query string, limit int) ([]*models.CatalogStock, error)
	Add(ctx context.Context, input *service.AddCatalogStockInput) (*models.CatalogStock, error)
	Delete(ctx context.Context, symbol string) error
	SectorData(ctx context.Context) (map[string]*models.SectorPerformance, error)
	Sector(ctx context.Context, name string) (*models.SectorPerformance, error)
	Quote(ctx context.Context, symbol string) (*marketdata.Snapshot, error)
	History(ctx context.Context, symbol string, since time.Time, limit int) ([]models.PricePoint, error)
}

// TokenManagerInterface issues and validates session tokens
type TokenManagerInterface interface {
	Issue(account *models.Account) (string, *auth.Claims, error)
	Parse(tokenString string) (*auth.Claims, error)
}

// RevocationStoreInterface tracks tokens revoked at logout
type RevocationStoreInterface interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// BudgetReporter exposes market data call budget consumption
type BudgetReporter interface {
	Usage(ctx context.Context) (*ratelimit.UsageStats, error)
}

// Pinger is a dependency checked by /health/ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies groups everything the server delegates to
type Dependencies struct {
	Accounts      AccountServiceInterface
	Subscriptions SubscriptionServiceInterface
	Watchlists    WatchlistServiceInterface
	Catalog       CatalogServiceInterface
	Tokens        TokenManagerInterface
	Revocations   RevocationStoreInterface
	// Budget is nil when no rate limited provider is configured
	Budget BudgetReporter
	// ReadinessChecks are pinged by /health/ready, keyed by name
	ReadinessChecks map[string]Pinger
	Metrics         *metrics.Metrics
}

// Server represents the HTTP API server.
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	accounts      AccountServiceInterface
	subscriptions SubscriptionServiceInterface
	watchlists    WatchlistServiceInterface
	catalog       CatalogServiceInterface
	tokens        TokenManagerInterface
	revocations   RevocationStoreInterface
	budget        BudgetReporter
	checks        map[string]Pinger
	metrics       *metrics.Metrics
	config        *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	Version         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MockAuthEnabled bool // Accept X-User-ID as a principal
	FreeTierRPM     int  // Requests per minute for free tier
	MediumTierRPM   int  // Requests per minute for medium tier
	ProTierRPM      int  // Requests per minute for pro tier
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		accounts:      deps.Accounts,
		subscriptions: deps.Subscriptions,
		watchlists:    deps.Watchlists,
		catalog:       deps.Catalog,
		tokens:        deps.Tokens,
		revocations:   deps.Revocations,
		budget:        deps.Budget,
		checks:        deps.ReadinessChecks,
		metrics:       deps.Metrics,
		config:        config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.FreeTierRPM, s.config.MediumTierRPM, s.config.ProTierRPM)

	// Order matters: the principal must be resolved before rate limiting keys on it
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(MetricsMiddleware(s.metrics))
	s.router.Use(CORSMiddleware(s.config.AllowedOrigins))
	s.router.Use(s.AuthMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Preflight requests match any path so CORSMiddleware can answer them
	s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/health/live", s.handleLive).Methods("GET")
	s.router.HandleFunc("/health/ready", s.handleReady).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()

	// Auth endpoints
	api.HandleFunc("/auth/signup", s.handleSignup).Methods("POST")
	api.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	api.Handle("/auth/logout", RequireAuth(http.HandlerFunc(s.handleLogout))).Methods("POST")
	api.Handle("/auth/me", RequireAuth(http.HandlerFunc(s.handleMe))).Methods("GET")

	// Subscription endpoints
	api.Handle("/user/request-subscription", RequireAuth(http.HandlerFunc(s.handleRequestSubscription))).Methods("POST")
	api.Handle("/user/subscription-requests", RequireAuth(http.HandlerFunc(s.handleListOwnRequests))).Methods("GET")

	// Watchlist endpoints
	api.Handle("/watchlists", RequireAuth(http.HandlerFunc(s.handleListWatchlists))).Methods("GET")
	api.Handle("/watchlists/{id}/stocks", RequireAuth(http.HandlerFunc(s.handleAddStock))).Methods("POST")
	api.Handle("/watchlists/{id}/stocks/{symbol}", RequireAuth(http.HandlerFunc(s.handleRemoveStock))).Methods("DELETE")

	// Stock catalogue endpoints; fixed paths before {symbol}
	api.HandleFunc("/stocks", s.handleListStocks).Methods("GET")
	api.HandleFunc("/stocks/by-industry", s.handleStocksByIndustry).Methods("GET")
	api.HandleFunc("/stocks/search", s.handleSearchStocks).Methods("GET")
	api.HandleFunc("/stocks/{symbol}", s.handleGetStock).Methods("GET")
	api.HandleFunc("/stocks/{symbol}/history", s.handleStockHistory).Methods("GET")
	api.Handle("/sector-data", RequireAuth(http.HandlerFunc(s.handleSectorData))).Methods("GET")

	// Admin endpoints
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(RequireAdmin)
	admin.HandleFunc("/subscription-requests", s.handleListPendingRequests).Methods("GET")
	admin.HandleFunc("/subscription-requests/{id}/approve", s.handleApproveRequest).Methods("POST")
	admin.HandleFunc("/subscription-requests/{id}/reject", s.handleRejectRequest).Methods("POST")
	admin.HandleFunc("/accounts", s.handleListAccounts).Methods("GET")
	admin.HandleFunc("/accounts/bulk-upgrade", s.handleBulkUpgrade).Methods("POST")
	admin.HandleFunc("/accounts/{id}", s.handleUpdateProfile).Methods("PUT")
	admin.HandleFunc("/accounts/{id}/tier", s.handleSetTier).Methods("PUT")
	admin.HandleFunc("/accounts/{id}/admin", s.handleSetAdmin).Methods("PUT")
	admin.HandleFunc("/stats", s.handleStats).Methods("GET")
	admin.HandleFunc("/stocks", s.handleAddCatalogStock).Methods("POST")
	admin.HandleFunc("/stocks/{symbol}", s.handleDeleteCatalogStock).Methods("DELETE")
	admin.HandleFunc("/market-data/budget", s.handleMarketDataBudget).Methods("GET")
}

// Handler returns the root handler, used by tests and embedding servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
