package marketdata

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trading-grow/internal/types"
)

type company struct {
	name   string
	sector string
}

// companies is the built-in reference table used for names and sectors
var companies = map[string]company{
	"AAPL":  {"Apple Inc.", "Technology"},
	"MSFT":  {"Microsoft Corp.", "Technology"},
	"GOOGL": {"Alphabet Inc.", "Technology"},
	"META":  {"Meta Platforms", "Technology"},
	"NVDA":  {"NVIDIA Corp.", "Technology"},
	"JNJ":   {"Johnson & Johnson", "Healthcare"},
	"PFE":   {"Pfizer Inc.", "Healthcare"},
	"UNH":   {"UnitedHealth Group", "Healthcare"},
	"ABBV":  {"AbbVie Inc.", "Healthcare"},
	"BMY":   {"Bristol Myers Squibb", "Healthcare"},
	"JPM":   {"JPMorgan Chase", "Financials"},
	"BAC":   {"Bank of America", "Financials"},
	"WFC":   {"Wells Fargo", "Financials"},
	"GS":    {"Goldman Sachs", "Financials"},
	"MS":    {"Morgan Stanley", "Financials"},
	"XOM":   {"Exxon Mobil", "Energy"},
	"CVX":   {"Chevron Corp.", "Energy"},
	"COP":   {"ConocoPhillips", "Energy"},
	"EOG":   {"EOG Resources", "Energy"},
	"SLB":   {"Schlumberger", "Energy"},
	"LIN":   {"Linde plc", "Materials"},
	"APD":   {"Air Products", "Materials"},
	"FCX":   {"Freeport McMoRan", "Materials"},
	"NEM":   {"Newmont Corp.", "Materials"},
	"DOW":   {"Dow Inc.", "Materials"},
	"HD":    {"Home Depot", "Wholesale Distributors"},
	"LOW":   {"Lowe's Companies", "Wholesale Distributors"},
	"TGT":   {"Target Corp.", "Wholesale Distributors"},
	"WMT":   {"Walmart Inc.", "Wholesale Distributors"},
	"COST":  {"Costco Wholesale", "Wholesale Distributors"},
	"MO":    {"Altria Group", "Tobacco"},
	"PM":    {"Philip Morris", "Tobacco"},
	"BTI":   {"British American Tobacco", "Tobacco"},
	"UVV":   {"Universal Corp.", "Tobacco"},
	"TPG":   {"TPG Inc.", "Tobacco"},
}

// CompanyName returns the reference name of symbol, if known
func CompanyName(symbol string) (string, bool) {
	c, ok := companies[types.CanonicalSymbol(symbol)]
	return c.name, ok
}

// SyntheticProvider derives stable prices from a hash of the symbol.
// The same symbol always yields the same snapshot within one day, which
// keeps seeding and tests reproducible without a network.
type SyntheticProvider struct {
	now func() time.Time
}

// NewSyntheticProvider creates a synthetic provider
func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{now: time.Now}
}

// Lookup implements Provider. Malformed symbols are reported as not found.
func (p *SyntheticProvider) Lookup(ctx context.Context, symbol string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = types.CanonicalSymbol(symbol)
	if !types.IsValidSymbol(symbol) {
		return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, symbol)
	}

	now := p.now().UTC()
	day := now.Format("2006-01-02")

	// price in [10, 500), change in [-5, 5), both with two decimals
	priceCents := 1000 + hashOf(symbol)%49000
	changeBasis := int64(hashOf(symbol+"|"+day)%1000) - 500

	price := decimal.New(int64(priceCents), -2)
	change := decimal.New(changeBasis, -2)

	name := symbol + " Corp"
	sector := ""
	if c, ok := companies[symbol]; ok {
		name = c.name
		sector = c.sector
	}

	return &Snapshot{
		Symbol:        symbol,
		Name:          name,
		Sector:        sector,
		Price:         price,
		ChangePercent: change,
		Source:        SourceSynthetic,
		AsOf:          now,
		Metadata: map[string]string{
			"marketCapCategory": marketCapCategory(price),
			"volume":            strconv.FormatUint(100000+hashOf(symbol+"|vol|"+day)%9900000, 10),
			"country":           "USA",
		},
	}, nil
}

func hashOf(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func marketCapCategory(price decimal.Decimal) string {
	switch {
	case price.GreaterThan(decimal.NewFromInt(200)):
		return "Large Cap"
	case price.GreaterThan(decimal.NewFromInt(50)):
		return "Mid Cap"
	default:
		return "Small Cap"
	}
}
