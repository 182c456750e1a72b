package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	apperrors "github.com/trading-grow/internal/errors"
	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/marketdata"
	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/ratelimit"
	"github.com/trading-grow/internal/types"
)

// CatalogRepository interface for stock catalogue data operations
type CatalogRepository interface {
	Create(ctx context.Context, stock *models.CatalogStock) error
	GetBySymbol(ctx context.Context, symbol string) (*models.CatalogStock, error)
	List(ctx context.Context) ([]*models.CatalogStock, error)
	Search(ctx context.Context, query string, limit int) ([]*models.CatalogStock, error)
	Delete(ctx context.Context, symbol string) error
}

// PriceHistoryRepository interface for recorded prices
type PriceHistoryRepository interface {
	History(ctx context.Context, symbol string, since time.Time, limit int) ([]models.PricePoint, error)
}

// Search and history bounds
const (
	DefaultSearchLimit  = 10
	MaxSearchLimit      = 50
	DefaultHistoryLimit = 500
	MaxHistoryLimit     = 5000
)

// sectorLookupConcurrency bounds the quote lookups of one sector summary
const sectorLookupConcurrency = 4

// snapshotForgetter is implemented by providers that cache snapshots
type snapshotForgetter interface {
	Forget(ctx context.Context, symbol string) error
}

// CatalogService serves the browsable stock catalogue, live quotes and price history
type CatalogService struct {
	stocks   CatalogRepository
	provider marketdata.Provider
	history  PriceHistoryRepository
}

// NewCatalogService creates a new catalogue service. history may be nil when
// price history storage is disabled.
func NewCatalogService(stocks CatalogRepository, provider marketdata.Provider, history PriceHistoryRepository) *CatalogService {
	return &CatalogService{stocks: stocks, provider: provider, history: history}
}

// AddCatalogStockInput represents input for adding a catalogue stock
type AddCatalogStockInput struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Sector       string `json:"sector"`
	IndustryType string `json:"industryType"`
	IndustryCode string `json:"industryCode"`
}

// IndustryIndex groups catalogue stocks by sector, then industry type
type IndustryIndex map[string]map[string]*models.IndustryGroup

// List returns the whole catalogue
func (s *CatalogService) List(ctx context.Context) ([]*models.CatalogStock, error) {
	return s.stocks.List(ctx)
}

// ByIndustry returns the catalogue grouped by sector and industry
func (s *CatalogService) ByIndustry(ctx context.Context) (IndustryIndex, error) {
	stocks, err := s.stocks.List(ctx)
	if err != nil {
		return nil, err
	}

	index := make(IndustryIndex)
	for _, stock := range stocks {
		industries, ok := index[stock.Sector]
		if !ok {
			industries = make(map[string]*models.IndustryGroup)
			index[stock.Sector] = industries
		}
		group, ok := industries[stock.IndustryType]
		if !ok {
			group = &models.IndustryGroup{IndustryCode: stock.IndustryCode}
			industries[stock.IndustryType] = group
		}
		group.Stocks = append(group.Stocks, *stock)
	}
	return index, nil
}

// Search matches query against symbols and names. An empty query matches nothing.
func (s *CatalogService) Search(ctx context.Context, query string, limit int) ([]*models.CatalogStock, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*models.CatalogStock{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return s.stocks.Search(ctx, query, limit)
}

// Add inserts a stock into the catalogue. The name defaults to the
// reference company name when one is known.
func (s *CatalogService) Add(ctx context.Context, input *AddCatalogStockInput) (*models.CatalogStock, error) {
	symbol := types.CanonicalSymbol(input.Symbol)
	if !types.IsValidSymbol(symbol) {
		return nil, invalidInput("invalid symbol", map[string]interface{}{"symbol": input.Symbol})
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		known, ok := marketdata.CompanyName(symbol)
		if !ok {
			return nil, invalidInput("name is required", map[string]interface{}{"symbol": symbol})
		}
		name = known
	}
	sector := strings.TrimSpace(input.Sector)
	if sector == "" {
		return nil, invalidInput("sector is required", map[string]interface{}{"symbol": symbol})
	}

	stock := &models.CatalogStock{
		Symbol:       symbol,
		Name:         name,
		Sector:       sector,
		IndustryType: strings.TrimSpace(input.IndustryType),
		IndustryCode: strings.TrimSpace(input.IndustryCode),
	}
	if err := s.stocks.Create(ctx, stock); err != nil {
		return nil, err
	}
	// A symbol unknown until now may be remembered as missing
	s.forget(ctx, symbol)
	return stock, nil
}

// Delete removes a stock from the catalogue and drops its cached snapshot
func (s *CatalogService) Delete(ctx context.Context, symbol string) error {
	symbol = types.CanonicalSymbol(symbol)
	if !types.IsValidSymbol(symbol) {
		return invalidInput("invalid symbol", map[string]interface{}{"symbol": symbol})
	}
	if err := s.stocks.Delete(ctx, symbol); err != nil {
		return err
	}
	s.forget(ctx, symbol)
	return nil
}

func (s *CatalogService) forget(ctx context.Context, symbol string) {
	f, ok := s.provider.(snapshotForgetter)
	if !ok {
		return
	}
	if err := f.Forget(ctx, symbol); err != nil {
		logging.FromContext(ctx).WithField("symbol", symbol).WithError(err).Warn("failed to drop cached snapshot")
	}
}

// SectorData summarises every catalogue sector, keyed by sector name
func (s *CatalogService) SectorData(ctx context.Context) (map[string]*models.SectorPerformance, error) {
	stocks, err := s.stocks.List(ctx)
	if err != nil {
		return nil, err
	}

	bySector := make(map[string][]*models.CatalogStock)
	for _, stock := range stocks {
		bySector[stock.Sector] = append(bySector[stock.Sector], stock)
	}

	out := make(map[string]*models.SectorPerformance, len(bySector))
	for name, members := range bySector {
		out[name] = s.summarise(ctx, name, members)
	}
	return out, nil
}

// Sector summarises one sector. A sector with no catalogue stock is not found.
func (s *CatalogService) Sector(ctx context.Context, name string) (*models.SectorPerformance, error) {
	name = strings.TrimSpace(name)
	stocks, err := s.stocks.List(ctx)
	if err != nil {
		return nil, err
	}

	var members []*models.CatalogStock
	for _, stock := range stocks {
		if stock.Sector == name {
			members = append(members, stock)
		}
	}
	if len(members) == 0 {
		return nil, types.WithDetails(types.ErrSectorNotFound, map[string]interface{}{"sector": name})
	}
	return s.summarise(ctx, name, members), nil
}

// summarise quotes the members concurrently. Members whose lookup fails
// count towards Stocks but not Quoted.
func (s *CatalogService) summarise(ctx context.Context, name string, members []*models.CatalogStock) *models.SectorPerformance {
	ctx = ratelimit.WithPriority(ctx, ratelimit.PriorityBackground)
	snapshots := make([]*marketdata.Snapshot, len(members))

	p := pool.New().WithMaxGoroutines(sectorLookupConcurrency)
	for i, member := range members {
		p.Go(func() {
			snapshot, err := s.provider.Lookup(ctx, member.Symbol)
			if err != nil {
				logging.FromContext(ctx).WithField("symbol", member.Symbol).WithError(err).Debug("sector member quote failed")
				return
			}
			snapshots[i] = snapshot
		})
	}
	p.Wait()

	perf := &models.SectorPerformance{
		Name:          name,
		Stocks:        len(members),
		ChangePercent: decimal.Zero,
	}
	var leader, laggard *marketdata.Snapshot
	sum := decimal.Zero
	for _, snapshot := range snapshots {
		if snapshot == nil {
			continue
		}
		perf.Quoted++
		sum = sum.Add(snapshot.ChangePercent)
		if leader == nil || snapshot.ChangePercent.GreaterThan(leader.ChangePercent) {
			leader = snapshot
		}
		if laggard == nil || snapshot.ChangePercent.LessThan(laggard.ChangePercent) {
			laggard = snapshot
		}
		if snapshot.AsOf.After(perf.AsOf) {
			perf.AsOf = snapshot.AsOf
		}
	}
	if perf.Quoted > 0 {
		perf.ChangePercent = sum.Div(decimal.NewFromInt(int64(perf.Quoted))).Round(2)
		perf.Leader = leader.Symbol
		perf.Laggard = laggard.Symbol
	}
	return perf
}

// Quote returns a live snapshot for symbol
func (s *CatalogService) Quote(ctx context.Context, symbol string) (*marketdata.Snapshot, error) {
	symbol = types.CanonicalSymbol(symbol)
	snapshot, err := s.provider.Lookup(ctx, symbol)
	if err != nil {
		if errors.Is(err, marketdata.ErrSymbolNotFound) {
			return nil, types.WithDetails(types.ErrStockNotFound, map[string]interface{}{"symbol": symbol})
		}
		return nil, err
	}
	return snapshot, nil
}

// History returns recorded prices of symbol since the given time, newest first
func (s *CatalogService) History(ctx context.Context, symbol string, since time.Time, limit int) ([]models.PricePoint, error) {
	if s.history == nil {
		return nil, apperrors.NewServiceUnavailableError("price history")
	}
	symbol = types.CanonicalSymbol(symbol)
	if !types.IsValidSymbol(symbol) {
		return nil, invalidInput("invalid symbol", map[string]interface{}{"symbol": symbol})
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.history.History(ctx, symbol, since, limit)
}
