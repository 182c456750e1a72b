package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/trading-grow/internal/auth"
	"github.com/trading-grow/internal/marketdata"
	"github.com/trading-grow/internal/metrics"
	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/service"
	"github.com/trading-grow/internal/storage"
	"github.com/trading-grow/internal/types"
)

// Mock services for testing

type mockAccountService struct {
	mu       sync.Mutex
	accounts map[string]*models.Account

	createFunc   func(ctx context.Context, input *service.CreateAccountInput) (*models.Account, error)
	verifyFunc   func(ctx context.Context, email, password string) (*models.Account, error)
	setTierFunc  func(ctx context.Context, accountID string, tier types.Tier) (*models.Account, error)
	bulkFunc     func(ctx context.Context, fromTier, toTier types.Tier) (int64, error)
	getErr       error
	listedLimit  int
	listedOffset int
}

func newMockAccountService() *mockAccountService {
	return &mockAccountService{accounts: make(map[string]*models.Account)}
}

func (m *mockAccountService) put(account *models.Account) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	return account
}

func (m *mockAccountService) CreateAccount(ctx context.Context, input *service.CreateAccountInput) (*models.Account, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, input)
	}
	return m.put(&models.Account{
		ID:          "acct-" + input.Email,
		Email:       input.Email,
		DisplayName: input.DisplayName,
		Tier:        types.TierFree,
	}), nil
}

func (m *mockAccountService) VerifyCredentials(ctx context.Context, email, password string) (*models.Account, error) {
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, email, password)
	}
	return nil, types.ErrInvalidCredentials
}

func (m *mockAccountService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, types.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *mockAccountService) ListAccounts(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listedLimit, m.listedOffset = limit, offset
	out := make([]*models.Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		out = append(out, account)
	}
	return out, nil
}

func (m *mockAccountService) TierCounts(ctx context.Context) (*models.TierCounts, error) {
	return &models.TierCounts{
		Total:  4,
		ByTier: map[types.Tier]int{types.TierFree: 2, types.TierMedium: 1, types.TierPro: 1},
		Admins: 1,
	}, nil
}

func (m *mockAccountService) SetTier(ctx context.Context, accountID string, tier types.Tier) (*models.Account, error) {
	if m.setTierFunc != nil {
		return m.setTierFunc(ctx, accountID, tier)
	}
	account, err := m.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account.Tier = tier
	return m.put(account), nil
}

func (m *mockAccountService) SetAdmin(ctx context.Context, accountID string, isAdmin bool) (*models.Account, error) {
	account, err := m.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account.IsAdmin = isAdmin
	return m.put(account), nil
}

func (m *mockAccountService) SetDisplayName(ctx context.Context, accountID, displayName string) (*models.Account, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, types.NewServiceError(types.CodeInvalidInput, "display name is required", nil)
	}
	account, err := m.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account.DisplayName = displayName
	return m.put(account), nil
}

func (m *mockAccountService) BulkUpgrade(ctx context.Context, fromTier, toTier types.Tier) (int64, error) {
	if m.bulkFunc != nil {
		return m.bulkFunc(ctx, fromTier, toTier)
	}
	return 0, nil
}

type mockSubscriptionService struct {
	submitFunc  func(ctx context.Context, account *models.Account, tier types.Tier) (*models.SubscriptionRequest, error)
	approveFunc func(ctx context.Context, id string) (*storage.DecisionResult, error)
	rejectFunc  func(ctx context.Context, id string) (*models.SubscriptionRequest, error)
	pending     []*models.SubscriptionRequest
	own         map[string][]*models.SubscriptionRequest
}

func (m *mockSubscriptionService) Submit(ctx context.Context, account *models.Account, tier types.Tier) (*models.SubscriptionRequest, error) {
	if m.submitFunc != nil {
		return m.submitFunc(ctx, account, tier)
	}
	return &models.SubscriptionRequest{
		ID:            "req-1",
		AccountID:     account.ID,
		RequestedTier: tier,
		CurrentTier:   account.Tier,
		Status:        types.RequestPending,
	}, nil
}

func (m *mockSubscriptionService) Approve(ctx context.Context, id string) (*storage.DecisionResult, error) {
	if m.approveFunc != nil {
		return m.approveFunc(ctx, id)
	}
	return nil, types.ErrRequestNotFound
}

func (m *mockSubscriptionService) Reject(ctx context.Context, id string) (*models.SubscriptionRequest, error) {
	if m.rejectFunc != nil {
		return m.rejectFunc(ctx, id)
	}
	return nil, types.ErrRequestNotFound
}

func (m *mockSubscriptionService) ListPending(ctx context.Context) ([]*models.SubscriptionRequest, error) {
	if m.pending == nil {
		return []*models.SubscriptionRequest{}, nil
	}
	return m.pending, nil
}

func (m *mockSubscriptionService) ListForAccount(ctx context.Context, accountID string) ([]*models.SubscriptionRequest, error) {
	if requests, ok := m.own[accountID]; ok {
		return requests, nil
	}
	return []*models.SubscriptionRequest{}, nil
}

type mockWatchlistService struct {
	addFunc    func(ctx context.Context, p auth.Principal, watchlistID, symbol string) (*models.StockEntry, error)
	removeFunc func(ctx context.Context, p auth.Principal, watchlistID, symbol string) error
	defaults   int
	// extra watchlists are listed after the defaults, as if created later
	extra []*models.Watchlist
	calls []string
}

func (m *mockWatchlistService) GetOrCreateDefaults(ctx context.Context, accountID string) (map[types.Category]*models.Watchlist, error) {
	m.defaults++
	m.calls = append(m.calls, "defaults")
	out := make(map[types.Category]*models.Watchlist, len(types.DefaultCategories))
	for _, category := range types.DefaultCategories {
		out[category] = &models.Watchlist{
			ID:        accountID + "-" + string(category),
			AccountID: accountID,
			Category:  category,
			Stocks:    models.StockList{},
		}
	}
	return out, nil
}

func (m *mockWatchlistService) ListWatchlists(ctx context.Context, accountID string) ([]*models.Watchlist, error) {
	m.calls = append(m.calls, "list")
	out := make([]*models.Watchlist, 0, len(types.DefaultCategories)+len(m.extra))
	for _, category := range types.DefaultCategories {
		out = append(out, &models.Watchlist{
			ID:        accountID + "-" + string(category),
			AccountID: accountID,
			Category:  category,
			Stocks:    models.StockList{},
		})
	}
	return append(out, m.extra...), nil
}

func (m *mockWatchlistService) AddStock(ctx context.Context, p auth.Principal, watchlistID, symbol string) (*models.StockEntry, error) {
	if m.addFunc != nil {
		return m.addFunc(ctx, p, watchlistID, symbol)
	}
	return &models.StockEntry{Symbol: types.CanonicalSymbol(symbol)}, nil
}

func (m *mockWatchlistService) RemoveStock(ctx context.Context, p auth.Principal, watchlistID, symbol string) error {
	if m.removeFunc != nil {
		return m.removeFunc(ctx, p, watchlistID, symbol)
	}
	return nil
}

type mockCatalogService struct {
	searchQuery string
	searchLimit int
	quoteFunc   func(ctx context.Context, symbol string) (*marketdata.Snapshot, error)
	historyFunc func(ctx context.Context, symbol string, since time.Time, limit int) ([]models.PricePoint, error)
	added       *service.AddCatalogStockInput
	deleted     []string
	sectorErr   error
}

var testSectors = map[string]*models.SectorPerformance{
	"Technology": {Name: "Technology", Stocks: 2, Quoted: 2, ChangePercent: decimal.NewFromFloat(1.25), Leader: "NVDA", Laggard: "AAPL"},
	"Energy":     {Name: "Energy", Stocks: 1, Quoted: 1, ChangePercent: decimal.NewFromFloat(-0.4), Leader: "XOM", Laggard: "XOM"},
}

func (m *mockCatalogService) List(ctx context.Context) ([]*models.CatalogStock, error) {
	return []*models.CatalogStock{{Symbol: "AAPL", Name: "Apple Inc.", Sector: "Technology"}}, nil
}

func (m *mockCatalogService) ByIndustry(ctx context.Context) (service.IndustryIndex, error) {
	return service.IndustryIndex{}, nil
}

func (m *mockCatalogService) Search(ctx context.Context, query string, limit int) ([]*models.CatalogStock, error) {
	m.searchQuery, m.searchLimit = query, limit
	return []*models.CatalogStock{}, nil
}

func (m *mockCatalogService) Add(ctx context.Context, input *service.AddCatalogStockInput) (*models.CatalogStock, error) {
	m.added = input
	return &models.CatalogStock{Symbol: types.CanonicalSymbol(input.Symbol), Name: input.Name, Sector: input.Sector}, nil
}

func (m *mockCatalogService) Delete(ctx context.Context, symbol string) error {
	symbol = types.CanonicalSymbol(symbol)
	if symbol != "AAPL" {
		return types.ErrStockNotFound
	}
	m.deleted = append(m.deleted, symbol)
	return nil
}

func (m *mockCatalogService) SectorData(ctx context.Context) (map[string]*models.SectorPerformance, error) {
	if m.sectorErr != nil {
		return nil, m.sectorErr
	}
	return testSectors, nil
}

func (m *mockCatalogService) Sector(ctx context.Context, name string) (*models.SectorPerformance, error) {
	sector, ok := testSectors[name]
	if !ok {
		return nil, types.ErrSectorNotFound
	}
	return sector, nil
}

func (m *mockCatalogService) Quote(ctx context.Context, symbol string) (*marketdata.Snapshot, error) {
	if m.quoteFunc != nil {
		return m.quoteFunc(ctx, symbol)
	}
	return nil, types.ErrStockNotFound
}

func (m *mockCatalogService) History(ctx context.Context, symbol string, since time.Time, limit int) ([]models.PricePoint, error) {
	if m.historyFunc != nil {
		return m.historyFunc(ctx, symbol, since, limit)
	}
	return []models.PricePoint{}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

// testEnv bundles a server with the mocks behind it
type testEnv struct {
	server        *Server
	accounts      *mockAccountService
	subscriptions *mockSubscriptionService
	watchlists    *mockWatchlistService
	catalog       *mockCatalogService
	tokens        *auth.TokenManager
	redis         *miniredis.Miniredis
	metrics       *metrics.Metrics
}

func defaultTestConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "127.0.0.1",
		Port:            "0",
		Version:         "test",
		AllowedOrigins:  []string{"*"},
		MockAuthEnabled: true,
		FreeTierRPM:     6000,
		MediumTierRPM:   6000,
		ProTierRPM:      6000,
	}
}

func createTestServer(t *testing.T) *testEnv {
	return createTestServerWithConfig(t, defaultTestConfig())
}

func createTestServerWithConfig(t *testing.T, config *ServerConfig) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := &testEnv{
		accounts:      newMockAccountService(),
		subscriptions: &mockSubscriptionService{},
		watchlists:    &mockWatchlistService{},
		catalog:       &mockCatalogService{},
		tokens:        auth.NewTokenManager("test-secret", time.Hour),
		redis:         mr,
		metrics:       metrics.New("tg"),
	}
	env.server = NewServer(config, Dependencies{
		Accounts:      env.accounts,
		Subscriptions: env.subscriptions,
		Watchlists:    env.watchlists,
		Catalog:       env.catalog,
		Tokens:        env.tokens,
		Revocations:   storage.NewTokenRevocationStore(storage.NewRedisCacheFromClient(client)),
		ReadinessChecks: map[string]Pinger{
			"postgres": stubPinger{},
			"redis":    stubPinger{},
		},
		Metrics: env.metrics,
	})
	return env
}

// do sends a request through the full middleware stack
func (e *testEnv) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) addAccount(id string, tier types.Tier, isAdmin bool) *models.Account {
	return e.accounts.put(&models.Account{
		ID:      id,
		Email:   id + "@example.com",
		Tier:    tier,
		IsAdmin: isAdmin,
	})
}

func asUser(id string) map[string]string {
	return map[string]string{MockUserHeader: id}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body), "body: %s", w.Body.String())
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, w)
	errBody, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected error envelope, got %v", body)
	code, _ := errBody["code"].(string)
	return code
}

var errBoom = errors.New("boom")
