package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogStock is an entry of the browsable stock catalogue
type CatalogStock struct {
	Symbol       string    `json:"symbol" db:"symbol"`
	Name         string    `json:"name" db:"name"`
	Sector       string    `json:"sector" db:"sector"`
	IndustryType string    `json:"industryType" db:"industry_type"`
	IndustryCode string    `json:"industryCode" db:"industry_code"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// IndustryGroup is the set of catalogue stocks sharing an industry
type IndustryGroup struct {
	IndustryCode string         `json:"industryCode"`
	Stocks       []CatalogStock `json:"stocks"`
}

// PricePoint is one recorded price observation for a symbol
type PricePoint struct {
	Symbol        string          `json:"symbol" ch:"symbol"`
	Price         decimal.Decimal `json:"price" ch:"price"`
	ChangePercent decimal.Decimal `json:"changePercent" ch:"change_percent"`
	Source        string          `json:"source" ch:"source"`
	RecordedAt    time.Time       `json:"recordedAt" ch:"recorded_at"`
}

// SectorPerformance summarises the live quotes of one catalogue sector.
// ChangePercent is the mean over the quoted members.
type SectorPerformance struct {
	Name          string          `json:"name"`
	Stocks        int             `json:"stocks"`
	Quoted        int             `json:"quoted"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Leader        string          `json:"leader,omitempty"`
	Laggard       string          `json:"laggard,omitempty"`
	AsOf          time.Time       `json:"asOf"`
}
