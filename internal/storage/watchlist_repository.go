package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/types"
)

// WatchlistRepository handles watchlist persistence
type WatchlistRepository struct {
	db *PostgresDB
}

// NewWatchlistRepository creates a new watchlist repository
func NewWatchlistRepository(db *PostgresDB) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

const watchlistColumns = `id, account_id, name, category, stocks, version, created_at, updated_at`

func scanWatchlist(row pgx.Row) (*models.Watchlist, error) {
	var w models.Watchlist
	var stocksJSON []byte

	err := row.Scan(
		&w.ID,
		&w.AccountID,
		&w.Name,
		&w.Category,
		&stocksJSON,
		&w.Version,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Stocks = models.StockList{}
	if len(stocksJSON) > 0 {
		if err := json.Unmarshal(stocksJSON, &w.Stocks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stocks: %w", err)
		}
	}
	return &w, nil
}

func marshalStocks(stocks models.StockList) ([]byte, error) {
	if stocks == nil {
		stocks = models.StockList{}
	}
	data, err := json.Marshal(stocks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stocks: %w", err)
	}
	return data, nil
}

// GetOrCreate inserts w unless the account already has a watchlist in the
// same category, in which case the existing row is returned untouched.
// The unique (account_id, category) constraint makes this safe under
// concurrent callers. The boolean result reports whether w was inserted.
func (r *WatchlistRepository) GetOrCreate(ctx context.Context, w *models.Watchlist) (*models.Watchlist, bool, error) {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	w.Version = 1

	stocksJSON, err := marshalStocks(w.Stocks)
	if err != nil {
		return nil, false, err
	}

	inserted, err := scanWatchlist(r.db.Pool().QueryRow(ctx, `
		INSERT INTO watchlists (`+watchlistColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT `+constraintWatchlistCategory+` DO NOTHING
		RETURNING `+watchlistColumns,
		w.ID,
		w.AccountID,
		w.Name,
		w.Category,
		stocksJSON,
		w.Version,
		w.CreatedAt,
		w.UpdatedAt,
	))
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create watchlist: %w", err)
	}

	existing, err := r.GetByAccountAndCategory(ctx, w.AccountID, w.Category)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID retrieves a watchlist by ID
func (r *WatchlistRepository) GetByID(ctx context.Context, id string) (*models.Watchlist, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, types.WithDetails(types.ErrWatchlistNotFound, map[string]interface{}{"watchlistId": id})
	}

	w, err := scanWatchlist(r.db.Pool().QueryRow(ctx,
		`SELECT `+watchlistColumns+` FROM watchlists WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.WithDetails(types.ErrWatchlistNotFound, map[string]interface{}{"watchlistId": id})
		}
		return nil, fmt.Errorf("failed to get watchlist: %w", err)
	}
	return w, nil
}

// GetByAccountAndCategory retrieves the watchlist an account holds in a category
func (r *WatchlistRepository) GetByAccountAndCategory(ctx context.Context, accountID string, category types.Category) (*models.Watchlist, error) {
	w, err := scanWatchlist(r.db.Pool().QueryRow(ctx,
		`SELECT `+watchlistColumns+` FROM watchlists WHERE account_id = $1 AND category = $2`,
		accountID, category))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.WithDetails(types.ErrWatchlistNotFound, map[string]interface{}{
				"accountId": accountID,
				"category":  category,
			})
		}
		return nil, fmt.Errorf("failed to get watchlist: %w", err)
	}
	return w, nil
}

// ListByAccount returns an account's watchlists in creation order
func (r *WatchlistRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Watchlist, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+watchlistColumns+`
		FROM watchlists
		WHERE account_id = $1
		ORDER BY created_at ASC, id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlists: %w", err)
	}
	defer rows.Close()

	watchlists := make([]*models.Watchlist, 0)
	for rows.Next() {
		w, err := scanWatchlist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watchlist: %w", err)
		}
		watchlists = append(watchlists, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating watchlists: %w", err)
	}
	return watchlists, nil
}

// Mutate runs fn against the current state of a watchlist while holding a
// row lock, so concurrent writers to the same watchlist are serialised.
// fn edits w.Stocks in place and reports whether anything changed; the
// stocks are written back and the version bumped only when it did.
func (r *WatchlistRepository) Mutate(ctx context.Context, id string, fn func(w *models.Watchlist) (bool, error)) (*models.Watchlist, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, types.WithDetails(types.ErrWatchlistNotFound, map[string]interface{}{"watchlistId": id})
	}

	var out *models.Watchlist
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		w, err := scanWatchlist(tx.QueryRow(ctx,
			`SELECT `+watchlistColumns+` FROM watchlists WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return types.WithDetails(types.ErrWatchlistNotFound, map[string]interface{}{"watchlistId": id})
			}
			return fmt.Errorf("failed to lock watchlist: %w", err)
		}

		changed, err := fn(w)
		if err != nil {
			return err
		}
		if !changed {
			out = w
			return nil
		}

		stocksJSON, err := marshalStocks(w.Stocks)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			UPDATE watchlists
			SET stocks = $2, version = version + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING version, updated_at
		`, id, stocksJSON).Scan(&w.Version, &w.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update watchlist stocks: %w", err)
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
