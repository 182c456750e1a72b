package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trading-grow/internal/types"
)

// StockEntry is a stock held inside a watchlist. It has no identity of its own.
type StockEntry struct {
	Symbol        string            `json:"symbol"`
	Name          string            `json:"name"`
	Price         decimal.Decimal   `json:"price"`
	ChangePercent decimal.Decimal   `json:"changePercent"`
	BuyPoint      decimal.Decimal   `json:"buyPoint"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	AddedAt       time.Time         `json:"addedAt"`
}

// StockList is the ordered stock sequence of a watchlist.
// Symbols are stored in canonical upper case and appear at most once.
type StockList []StockEntry

// IndexOf returns the position of symbol in the list, or -1.
// The comparison is case-insensitive.
func (l StockList) IndexOf(symbol string) int {
	canonical := types.CanonicalSymbol(symbol)
	for i, entry := range l {
		if types.CanonicalSymbol(entry.Symbol) == canonical {
			return i
		}
	}
	return -1
}

// Contains reports whether symbol is already held
func (l StockList) Contains(symbol string) bool {
	return l.IndexOf(symbol) >= 0
}

// Append adds entry at the end of the list. The entry symbol is canonicalised
// and ErrDuplicateSymbol is returned if it is already present.
func (l StockList) Append(entry StockEntry) (StockList, error) {
	entry.Symbol = types.CanonicalSymbol(entry.Symbol)
	if l.Contains(entry.Symbol) {
		return l, types.WithDetails(types.ErrDuplicateSymbol, map[string]interface{}{"symbol": entry.Symbol})
	}
	out := make(StockList, len(l), len(l)+1)
	copy(out, l)
	return append(out, entry), nil
}

// Remove drops symbol from the list. The second return value is false when
// the symbol was not present, in which case the list is returned unchanged.
func (l StockList) Remove(symbol string) (StockList, bool) {
	idx := l.IndexOf(symbol)
	if idx < 0 {
		return l, false
	}
	out := make(StockList, 0, len(l)-1)
	out = append(out, l[:idx]...)
	return append(out, l[idx+1:]...), true
}

// Symbols returns the held symbols in order
func (l StockList) Symbols() []string {
	out := make([]string, len(l))
	for i, entry := range l {
		out[i] = entry.Symbol
	}
	return out
}

// Watchlist is a named, categorised collection of stocks owned by one account
type Watchlist struct {
	ID        string         `json:"id" db:"id"`
	AccountID string         `json:"accountId" db:"account_id"`
	Name      string         `json:"name" db:"name"`
	Category  types.Category `json:"category" db:"category"`
	Stocks    StockList      `json:"stocks" db:"stocks"`
	Version   int64          `json:"version" db:"version"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time      `json:"updatedAt" db:"updated_at"`
}

// IsOwnedBy reports whether accountID owns the watchlist
func (w *Watchlist) IsOwnedBy(accountID string) bool {
	return w.AccountID == accountID
}
