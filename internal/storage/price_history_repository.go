package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/types"
)

// PriceHistoryRepository stores snapshot prices in ClickHouse
type PriceHistoryRepository struct {
	db *ClickHouseDB
}

// NewPriceHistoryRepository creates a new price history repository
func NewPriceHistoryRepository(db *ClickHouseDB) *PriceHistoryRepository {
	return &PriceHistoryRepository{db: db}
}

// Record appends price points in a single batch
func (r *PriceHistoryRepository) Record(ctx context.Context, points ...models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx,
		"INSERT INTO price_history (symbol, price, change_percent, source, recorded_at)")
	if err != nil {
		return fmt.Errorf("failed to prepare price batch: %w", err)
	}

	for _, p := range points {
		recordedAt := p.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = time.Now().UTC()
		}
		if err := batch.Append(types.CanonicalSymbol(p.Symbol), p.Price, p.ChangePercent, p.Source, recordedAt); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append price point: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send price batch: %w", err)
	}
	return nil
}

// History returns the price points of symbol recorded since the given time,
// newest first.
func (r *PriceHistoryRepository) History(ctx context.Context, symbol string, since time.Time, limit int) ([]models.PricePoint, error) {
	rows, err := r.db.Conn().Query(ctx, `
		SELECT symbol, price, change_percent, source, recorded_at
		FROM price_history
		WHERE symbol = ? AND recorded_at >= ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`, types.CanonicalSymbol(symbol), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	points := make([]models.PricePoint, 0)
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Symbol, &p.Price, &p.ChangePercent, &p.Source, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price history: %w", err)
	}
	return points, nil
}
