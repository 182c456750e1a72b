package models

import (
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trading-grow/internal/types"
)

func listOf(symbols ...string) StockList {
	var l StockList
	for _, s := range symbols {
		l = append(l, StockEntry{Symbol: s})
	}
	return l
}

func TestStockList_AppendCanonicalises(t *testing.T) {
	l, err := StockList(nil).Append(StockEntry{Symbol: " aapl "})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, l.Symbols())
}

func TestStockList_AppendRejectsCaseInsensitiveDuplicate(t *testing.T) {
	l, err := StockList(nil).Append(StockEntry{Symbol: "aapl"})
	require.NoError(t, err)

	same, err := l.Append(StockEntry{Symbol: "AAPL"})
	assert.True(t, errors.Is(err, types.ErrDuplicateSymbol))
	assert.Equal(t, l, same)
}

func TestStockList_AppendDoesNotAliasInput(t *testing.T) {
	base := make(StockList, 1, 4)
	base[0] = StockEntry{Symbol: "AAPL"}

	a, err := base.Append(StockEntry{Symbol: "MSFT"})
	require.NoError(t, err)
	b, err := base.Append(StockEntry{Symbol: "NVDA"})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, a.Symbols())
	assert.Equal(t, []string{"AAPL", "NVDA"}, b.Symbols())
}

func TestStockList_Remove(t *testing.T) {
	l := listOf("AAPL", "MSFT")

	out, removed := l.Remove("aapl")
	assert.True(t, removed)
	assert.Equal(t, []string{"MSFT"}, out.Symbols())
	assert.Equal(t, []string{"AAPL", "MSFT"}, l.Symbols(), "receiver must not be modified")

	again, removed := out.Remove("ZZZZ")
	assert.False(t, removed)
	assert.Equal(t, out, again)
}

func TestStockList_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("appending then removing restores the list", prop.ForAll(
		func(symbols []string, extra string) bool {
			l := StockList(nil)
			for _, s := range symbols {
				l, _ = l.Append(StockEntry{Symbol: s})
			}
			if l.Contains(extra) {
				return true
			}
			grown, err := l.Append(StockEntry{Symbol: extra})
			if err != nil {
				return false
			}
			shrunk, removed := grown.Remove(extra)
			return removed && equalSymbols(shrunk.Symbols(), l.Symbols())
		},
		gen.SliceOf(gen.Identifier()),
		gen.Identifier(),
	))

	properties.Property("symbols are unique after any sequence of appends", prop.ForAll(
		func(symbols []string) bool {
			l := StockList(nil)
			for _, s := range symbols {
				l, _ = l.Append(StockEntry{Symbol: s})
			}
			seen := map[string]bool{}
			for _, s := range l.Symbols() {
				if seen[s] {
					return false
				}
				seen[s] = true
			}
			return true
		},
		gen.SliceOf(gen.OneConstOf("aapl", "AAPL", "msft", "Msft", "NVDA"), reflect.TypeOf("")),
	))

	properties.Property("removing twice equals removing once", prop.ForAll(
		func(symbols []string, target string) bool {
			l := StockList(nil)
			for _, s := range symbols {
				l, _ = l.Append(StockEntry{Symbol: s})
			}
			once, _ := l.Remove(target)
			twice, _ := once.Remove(target)
			return equalSymbols(once.Symbols(), twice.Symbols())
		},
		gen.SliceOf(gen.Identifier()),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

func equalSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
