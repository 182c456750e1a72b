package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/types"
)

// CatalogRepository handles the browsable stock catalogue
type CatalogRepository struct {
	db *PostgresDB
}

// NewCatalogRepository creates a new catalogue repository
func NewCatalogRepository(db *PostgresDB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

const catalogColumns = `symbol, name, sector, industry_type, industry_code, created_at`

func scanCatalogStock(row pgx.Row) (*models.CatalogStock, error) {
	var s models.CatalogStock
	if err := row.Scan(&s.Symbol, &s.Name, &s.Sector, &s.IndustryType, &s.IndustryCode, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create adds a stock to the catalogue
func (r *CatalogRepository) Create(ctx context.Context, stock *models.CatalogStock) error {
	stock.Symbol = types.CanonicalSymbol(stock.Symbol)
	stock.CreatedAt = time.Now().UTC()

	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO stocks (`+catalogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, stock.Symbol, stock.Name, stock.Sector, stock.IndustryType, stock.IndustryCode, stock.CreatedAt)
	if err != nil {
		if uniqueViolation(err, constraintStockSymbol) {
			return types.WithDetails(types.ErrDuplicateStock, map[string]interface{}{"symbol": stock.Symbol})
		}
		return fmt.Errorf("failed to create stock: %w", err)
	}
	return nil
}

// GetBySymbol retrieves a catalogue stock
func (r *CatalogRepository) GetBySymbol(ctx context.Context, symbol string) (*models.CatalogStock, error) {
	symbol = types.CanonicalSymbol(symbol)
	stock, err := scanCatalogStock(r.db.Pool().QueryRow(ctx,
		`SELECT `+catalogColumns+` FROM stocks WHERE symbol = $1`, symbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.WithDetails(types.ErrStockNotFound, map[string]interface{}{"symbol": symbol})
		}
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return stock, nil
}

// Delete removes a stock from the catalogue. Watchlists keep their own
// copy of each entry and are not touched.
func (r *CatalogRepository) Delete(ctx context.Context, symbol string) error {
	symbol = types.CanonicalSymbol(symbol)
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM stocks WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.WithDetails(types.ErrStockNotFound, map[string]interface{}{"symbol": symbol})
	}
	return nil
}

// List returns the whole catalogue ordered by sector, industry and symbol
func (r *CatalogRepository) List(ctx context.Context) ([]*models.CatalogStock, error) {
	return r.query(ctx, `
		SELECT `+catalogColumns+`
		FROM stocks
		ORDER BY sector, industry_type, symbol
	`)
}

// Search matches query against symbol and name, case-insensitively.
// Exact symbol matches sort first.
func (r *CatalogRepository) Search(ctx context.Context, query string, limit int) ([]*models.CatalogStock, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	return r.query(ctx, `
		SELECT `+catalogColumns+`
		FROM stocks
		WHERE symbol ILIKE $1 OR name ILIKE $1
		ORDER BY (upper(symbol) = upper($2)) DESC, symbol
		LIMIT $3
	`, pattern, strings.TrimSpace(query), limit)
}

func (r *CatalogRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.CatalogStock, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer rows.Close()

	stocks := make([]*models.CatalogStock, 0)
	for rows.Next() {
		stock, err := scanCatalogStock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, stock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stocks: %w", err)
	}
	return stocks, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
