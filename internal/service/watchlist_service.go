package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/trading-grow/internal/auth"
	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/marketdata"
	"github.com/trading-grow/internal/metrics"
	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/ratelimit"
	"github.com/trading-grow/internal/types"
)

// WatchlistRepository interface for watchlist data operations
type WatchlistRepository interface {
	GetOrCreate(ctx context.Context, w *models.Watchlist) (*models.Watchlist, bool, error)
	GetByID(ctx context.Context, id string) (*models.Watchlist, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.Watchlist, error)
	Mutate(ctx context.Context, id string, fn func(w *models.Watchlist) (bool, error)) (*models.Watchlist, error)
}

// TemplateEntry is one stock of a default watchlist
type TemplateEntry struct {
	Symbol   string
	BuyPoint decimal.Decimal
}

// WatchlistTemplate describes a default watchlist
type WatchlistTemplate struct {
	Name    string
	Entries []TemplateEntry
}

func entry(symbol string, buyPoint int64) TemplateEntry {
	return TemplateEntry{Symbol: symbol, BuyPoint: decimal.NewFromInt(buyPoint)}
}

// DefaultTemplates seed the watchlists every account starts with
var DefaultTemplates = map[types.Category]WatchlistTemplate{
	types.CategoryBreakout: {
		Name:    "Breakout Watchlist",
		Entries: []TemplateEntry{entry("AAPL", 180), entry("PFE", 34), entry("JPM", 200), entry("CVX", 160)},
	},
	types.CategorySpeculative: {
		Name:    "Speculative Watchlist",
		Entries: []TemplateEntry{entry("META", 300), entry("NVDA", 400), entry("GOOGL", 120)},
	},
	types.CategoryNormal: {
		Name:    "Normal Watchlist",
		Entries: []TemplateEntry{entry("MSFT", 350), entry("JNJ", 160), entry("XOM", 110)},
	},
}

// WatchlistService manages watchlists and their stock membership
type WatchlistService struct {
	watchlists      WatchlistRepository
	provider        marketdata.Provider
	templates       map[types.Category]WatchlistTemplate
	seedConcurrency int
	metrics         *metrics.Metrics
	now             func() time.Time
}

// NewWatchlistService creates a new watchlist service
func NewWatchlistService(watchlists WatchlistRepository, provider marketdata.Provider, seedConcurrency int, m *metrics.Metrics) *WatchlistService {
	if seedConcurrency < 1 {
		seedConcurrency = 1
	}
	return &WatchlistService{
		watchlists:      watchlists,
		provider:        provider,
		templates:       DefaultTemplates,
		seedConcurrency: seedConcurrency,
		metrics:         m,
		now:             time.Now,
	}
}

// GetOrCreateDefaults returns the account's watchlist for every default
// category, creating and seeding the ones that do not exist yet.
// Concurrent callers for the same account all observe the same rows.
func (s *WatchlistService) GetOrCreateDefaults(ctx context.Context, accountID string) (map[types.Category]*models.Watchlist, error) {
	existing, err := s.watchlists.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	result := make(map[types.Category]*models.Watchlist, len(types.DefaultCategories))
	for _, w := range existing {
		result[w.Category] = w
	}

	for _, category := range types.DefaultCategories {
		if _, ok := result[category]; ok {
			continue
		}
		template := s.templates[category]

		w, created, err := s.watchlists.GetOrCreate(ctx, &models.Watchlist{
			AccountID: accountID,
			Name:      template.Name,
			Category:  category,
			Stocks:    s.seed(ctx, template.Entries),
		})
		if err != nil {
			return nil, err
		}
		if created {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"account_id": accountID,
				"category":   category,
				"stocks":     len(w.Stocks),
			}).Info("default watchlist created")
		}
		result[category] = w
	}
	return result, nil
}

// seed resolves template entries concurrently. Entries whose lookup fails
// are skipped; the order of the template is kept.
func (s *WatchlistService) seed(ctx context.Context, entries []TemplateEntry) models.StockList {
	ctx = ratelimit.WithPriority(ctx, ratelimit.PriorityBackground)
	resolved := make([]*models.StockEntry, len(entries))

	p := pool.New().WithMaxGoroutines(s.seedConcurrency)
	for i, e := range entries {
		p.Go(func() {
			stock, err := s.resolve(ctx, e.Symbol, e.BuyPoint)
			if err != nil {
				logging.FromContext(ctx).WithField("symbol", e.Symbol).WithError(err).Warn("skipping default watchlist entry")
				return
			}
			resolved[i] = stock
		})
	}
	p.Wait()

	stocks := make(models.StockList, 0, len(entries))
	for _, stock := range resolved {
		if stock == nil {
			continue
		}
		if next, err := stocks.Append(*stock); err == nil {
			stocks = next
		}
	}
	return stocks
}

// resolve looks up symbol and builds the stock entry for it
func (s *WatchlistService) resolve(ctx context.Context, symbol string, buyPoint decimal.Decimal) (*models.StockEntry, error) {
	snapshot, err := s.provider.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &models.StockEntry{
		Symbol:        snapshot.Symbol,
		Name:          snapshot.Name,
		Price:         snapshot.Price,
		ChangePercent: snapshot.ChangePercent,
		BuyPoint:      buyPoint,
		Metadata:      snapshot.Metadata,
		AddedAt:       s.now().UTC(),
	}, nil
}

// ListWatchlists returns every watchlist of an account in creation order
func (s *WatchlistService) ListWatchlists(ctx context.Context, accountID string) ([]*models.Watchlist, error) {
	return s.watchlists.ListByAccount(ctx, accountID)
}

// AddStock appends symbol to a watchlist owned by the principal.
// The snapshot is resolved before the watchlist row is locked, and the
// duplicate check is repeated under the lock.
func (s *WatchlistService) AddStock(ctx context.Context, principal auth.Principal, watchlistID, symbol string) (*models.StockEntry, error) {
	stock, err := s.addStock(ctx, principal, watchlistID, symbol)
	s.metrics.ObserveWatchlistMutation("add", outcomeOf(err))
	return stock, err
}

func (s *WatchlistService) addStock(ctx context.Context, principal auth.Principal, watchlistID, symbol string) (*models.StockEntry, error) {
	symbol = types.CanonicalSymbol(symbol)

	w, err := s.watchlists.GetByID(ctx, watchlistID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(w, principal); err != nil {
		return nil, err
	}
	if w.Stocks.Contains(symbol) {
		return nil, types.WithDetails(types.ErrDuplicateSymbol, map[string]interface{}{"symbol": symbol})
	}

	stock, err := s.resolve(ratelimit.WithPriority(ctx, ratelimit.PriorityInteractive), symbol, decimal.Zero)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logging.FromContext(ctx).WithField("symbol", symbol).WithError(err).Info("symbol lookup failed")
		return nil, types.WithDetails(types.ErrSymbolLookupFailed, map[string]interface{}{
			"symbol":   symbol,
			"notFound": errors.Is(err, marketdata.ErrSymbolNotFound),
		})
	}
	stock.BuyPoint = stock.Price

	_, err = s.watchlists.Mutate(ctx, watchlistID, func(w *models.Watchlist) (bool, error) {
		if err := checkOwner(w, principal); err != nil {
			return false, err
		}
		next, err := w.Stocks.Append(*stock)
		if err != nil {
			return false, err
		}
		w.Stocks = next
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return stock, nil
}

// RemoveStock drops symbol from a watchlist owned by the principal.
// Removing a symbol that is not held succeeds without changing anything.
func (s *WatchlistService) RemoveStock(ctx context.Context, principal auth.Principal, watchlistID, symbol string) error {
	_, err := s.watchlists.Mutate(ctx, watchlistID, func(w *models.Watchlist) (bool, error) {
		if err := checkOwner(w, principal); err != nil {
			return false, err
		}
		next, removed := w.Stocks.Remove(symbol)
		w.Stocks = next
		return removed, nil
	})
	s.metrics.ObserveWatchlistMutation("remove", outcomeOf(err))
	return err
}

func checkOwner(w *models.Watchlist, principal auth.Principal) error {
	if principal == nil || !w.IsOwnedBy(principal.AccountID()) {
		return types.WithDetails(types.ErrUnauthorized, map[string]interface{}{"watchlistId": w.ID})
	}
	return nil
}
