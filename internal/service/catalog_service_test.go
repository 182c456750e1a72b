package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/trading-grow/internal/errors"
	"github.com/trading-grow/internal/marketdata"
	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/types"
)

func catalogFixture() *fakeCatalogRepo {
	return newFakeCatalogRepo(
		&models.CatalogStock{Symbol: "AAPL", Name: "Apple Inc.", Sector: "Technology", IndustryType: "Hardware", IndustryCode: "TECH-HW"},
		&models.CatalogStock{Symbol: "MSFT", Name: "Microsoft Corp.", Sector: "Technology", IndustryType: "Software", IndustryCode: "TECH-SW"},
		&models.CatalogStock{Symbol: "NVDA", Name: "NVIDIA Corp.", Sector: "Technology", IndustryType: "Hardware", IndustryCode: "TECH-HW"},
		&models.CatalogStock{Symbol: "XOM", Name: "Exxon Mobil", Sector: "Energy", IndustryType: "Oil & Gas", IndustryCode: "ENR-OG"},
	)
}

type fakeHistory struct {
	points []models.PricePoint
	limit  int
}

func (h *fakeHistory) History(ctx context.Context, symbol string, since time.Time, limit int) ([]models.PricePoint, error) {
	h.limit = limit
	return h.points, nil
}

func TestCatalog_ByIndustry(t *testing.T) {
	svc := NewCatalogService(catalogFixture(), marketdata.NewSyntheticProvider(), nil)

	index, err := svc.ByIndustry(context.Background())
	require.NoError(t, err)

	require.Contains(t, index, "Technology")
	hardware := index["Technology"]["Hardware"]
	require.NotNil(t, hardware)
	assert.Equal(t, "TECH-HW", hardware.IndustryCode)
	assert.Len(t, hardware.Stocks, 2)
	assert.Len(t, index["Energy"]["Oil & Gas"].Stocks, 1)
}

func TestCatalog_Search(t *testing.T) {
	svc := NewCatalogService(catalogFixture(), marketdata.NewSyntheticProvider(), nil)
	ctx := context.Background()

	results, err := svc.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = svc.Search(ctx, "corp", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = svc.Search(ctx, "corp", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestCatalog_Add(t *testing.T) {
	svc := NewCatalogService(catalogFixture(), marketdata.NewSyntheticProvider(), nil)
	ctx := context.Background()

	stock, err := svc.Add(ctx, &AddCatalogStockInput{Symbol: " cvx ", Sector: "Energy", IndustryType: "Oil & Gas", IndustryCode: "ENR-OG"})
	require.NoError(t, err)
	assert.Equal(t, "CVX", stock.Symbol)
	assert.Equal(t, "Chevron Corp.", stock.Name, "known symbols default their name")

	_, err = svc.Add(ctx, &AddCatalogStockInput{Symbol: "CVX", Name: "Chevron", Sector: "Energy"})
	assert.True(t, errors.Is(err, types.ErrDuplicateStock))

	_, err = svc.Add(ctx, &AddCatalogStockInput{Symbol: "QQQQ", Sector: "Energy"})
	assert.True(t, isCode(err, types.CodeInvalidInput), "unknown symbols need a name")

	_, err = svc.Add(ctx, &AddCatalogStockInput{Symbol: "1BAD", Name: "Bad", Sector: "Energy"})
	assert.True(t, isCode(err, types.CodeInvalidInput))

	_, err = svc.Add(ctx, &AddCatalogStockInput{Symbol: "GOOD", Name: "Good"})
	assert.True(t, isCode(err, types.CodeInvalidInput), "sector is required")
}

func TestCatalog_Quote(t *testing.T) {
	svc := NewCatalogService(catalogFixture(), failingFor("ZZZZ"), nil)
	ctx := context.Background()

	snapshot, err := svc.Quote(ctx, "msft")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", snapshot.Symbol)

	_, err = svc.Quote(ctx, "zzzz")
	assert.True(t, errors.Is(err, types.ErrStockNotFound))
}

func TestCatalog_History(t *testing.T) {
	disabled := NewCatalogService(catalogFixture(), marketdata.NewSyntheticProvider(), nil)
	_, err := disabled.History(context.Background(), "AAPL", time.Now().Add(-time.Hour), 10)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.GetHTTPStatusCode(err))

	history := &fakeHistory{points: []models.PricePoint{{Symbol: "AAPL", Source: marketdata.SourceSynthetic}}}
	svc := NewCatalogService(catalogFixture(), marketdata.NewSyntheticProvider(), history)

	points, err := svc.History(context.Background(), "aapl", time.Now().Add(-time.Hour), 1_000_000)
	require.NoError(t, err)
	assert.Len(t, points, 1)
	assert.Equal(t, MaxHistoryLimit, history.limit)
}

// changeProvider quotes each symbol with a fixed change percent
func changeProvider(changes map[string]float64) marketdata.Provider {
	asOf := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	return marketdata.ProviderFunc(func(ctx context.Context, symbol string) (*marketdata.Snapshot, error) {
		change, ok := changes[symbol]
		if !ok {
			return nil, marketdata.ErrSymbolNotFound
		}
		return &marketdata.Snapshot{
			Symbol:        symbol,
			Price:         decimal.NewFromInt(100),
			ChangePercent: decimal.NewFromFloat(change),
			Source:        marketdata.SourceSynthetic,
			AsOf:          asOf,
		}, nil
	})
}

func TestCatalog_SectorData(t *testing.T) {
	provider := changeProvider(map[string]float64{"AAPL": 1.5, "MSFT": -0.5, "NVDA": 2.5, "XOM": -1})
	svc := NewCatalogService(catalogFixture(), provider, nil)

	sectors, err := svc.SectorData(context.Background())
	require.NoError(t, err)
	require.Len(t, sectors, 2)

	tech := sectors["Technology"]
	require.NotNil(t, tech)
	assert.Equal(t, "Technology", tech.Name)
	assert.Equal(t, 3, tech.Stocks)
	assert.Equal(t, 3, tech.Quoted)
	assert.Equal(t, "1.17", tech.ChangePercent.StringFixed(2))
	assert.Equal(t, "NVDA", tech.Leader)
	assert.Equal(t, "MSFT", tech.Laggard)
	assert.False(t, tech.AsOf.IsZero())

	energy := sectors["Energy"]
	require.NotNil(t, energy)
	assert.Equal(t, "XOM", energy.Leader)
	assert.Equal(t, energy.Leader, energy.Laggard)
}

func TestCatalog_SectorSkipsFailedQuotes(t *testing.T) {
	svc := NewCatalogService(catalogFixture(), changeProvider(map[string]float64{"AAPL": 1}), nil)

	tech, err := svc.Sector(context.Background(), " Technology ")
	require.NoError(t, err)
	assert.Equal(t, 3, tech.Stocks)
	assert.Equal(t, 1, tech.Quoted)
	assert.Equal(t, "AAPL", tech.Leader)

	energy, err := svc.Sector(context.Background(), "Energy")
	require.NoError(t, err)
	assert.Equal(t, 0, energy.Quoted)
	assert.True(t, energy.ChangePercent.IsZero())
	assert.Empty(t, energy.Leader)
}

func TestCatalog_SectorNotFound(t *testing.T) {
	svc := NewCatalogService(catalogFixture(), marketdata.NewSyntheticProvider(), nil)

	_, err := svc.Sector(context.Background(), "Tobacco")
	assert.True(t, errors.Is(err, types.ErrSectorNotFound))
	assert.Equal(t, http.StatusNotFound, apperrors.GetHTTPStatusCode(err))
}

type forgettingProvider struct {
	marketdata.Provider
	forgotten []string
}

func (p *forgettingProvider) Forget(ctx context.Context, symbol string) error {
	p.forgotten = append(p.forgotten, symbol)
	return nil
}

func TestCatalog_Delete(t *testing.T) {
	provider := &forgettingProvider{Provider: marketdata.NewSyntheticProvider()}
	repo := catalogFixture()
	svc := NewCatalogService(repo, provider, nil)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, " xom "))
	_, err := repo.GetBySymbol(ctx, "XOM")
	assert.True(t, errors.Is(err, types.ErrStockNotFound))
	assert.Equal(t, []string{"XOM"}, provider.forgotten)

	err = svc.Delete(ctx, "XOM")
	assert.True(t, errors.Is(err, types.ErrStockNotFound))

	err = svc.Delete(ctx, "1BAD")
	assert.True(t, isCode(err, types.CodeInvalidInput))
	assert.Len(t, provider.forgotten, 1, "failed deletes keep the cache")
}

func TestCatalog_AddForgetsMissingMarker(t *testing.T) {
	provider := &forgettingProvider{Provider: marketdata.NewSyntheticProvider()}
	svc := NewCatalogService(catalogFixture(), provider, nil)

	_, err := svc.Add(context.Background(), &AddCatalogStockInput{Symbol: "newco", Name: "New Co", Sector: "Energy"})
	require.NoError(t, err)
	assert.Equal(t, []string{"NEWCO"}, provider.forgotten)
}
