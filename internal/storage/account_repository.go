package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/types"
)

// AccountRepository handles account persistence
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, email, display_name, password_hash, tier, is_admin, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.DisplayName,
		&a.PasswordHash,
		&a.Tier,
		&a.IsAdmin,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new account. A clash on the email constraint is reported
// as types.ErrDuplicateEmail.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if !account.Tier.IsValid() {
		return types.WithDetails(types.ErrInvalidTier, map[string]interface{}{"tier": account.Tier})
	}

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		account.ID,
		account.Email,
		account.DisplayName,
		account.PasswordHash,
		account.Tier,
		account.IsAdmin,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, constraintAccountEmail) {
			return types.WithDetails(types.ErrDuplicateEmail, map[string]interface{}{"email": account.Email})
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// accountNotFound also covers ids that are not UUIDs; Postgres would reject
// those with 22P02 rather than return no rows.
func accountNotFound(id string) error {
	return types.WithDetails(types.ErrAccountNotFound, map[string]interface{}{"accountId": id})
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, accountNotFound(id)
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, accountNotFound(id)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetByEmail retrieves an account by its stored email
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	account, err := scanAccount(r.db.Pool().QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// List returns accounts ordered by creation time, newest first
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool().Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// UpdateTier sets the tier of an account
func (r *AccountRepository) UpdateTier(ctx context.Context, id string, tier types.Tier) error {
	if !tier.IsValid() {
		return types.WithDetails(types.ErrInvalidTier, map[string]interface{}{"tier": tier})
	}
	if _, err := uuid.Parse(id); err != nil {
		return accountNotFound(id)
	}

	result, err := r.db.Pool().Exec(ctx,
		`UPDATE accounts SET tier = $2, updated_at = NOW() WHERE id = $1`,
		id, tier,
	)
	if err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}
	if result.RowsAffected() == 0 {
		return accountNotFound(id)
	}
	return nil
}

// UpdateProfile changes the display name and admin flag of an account
func (r *AccountRepository) UpdateProfile(ctx context.Context, id, displayName string, isAdmin bool) error {
	if _, err := uuid.Parse(id); err != nil {
		return accountNotFound(id)
	}
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE accounts SET display_name = $2, is_admin = $3, updated_at = NOW() WHERE id = $1`,
		id, displayName, isAdmin,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return accountNotFound(id)
	}
	return nil
}

// SetPassword replaces the password hash of an account
func (r *AccountRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	if _, err := uuid.Parse(id); err != nil {
		return accountNotFound(id)
	}
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return accountNotFound(id)
	}
	return nil
}

// BulkUpdateTier moves every non-admin account on fromTier to toTier and
// returns the number of accounts changed.
func (r *AccountRepository) BulkUpdateTier(ctx context.Context, fromTier, toTier types.Tier) (int64, error) {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE accounts SET tier = $2, updated_at = NOW() WHERE tier = $1 AND NOT is_admin`,
		fromTier, toTier,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk update tier: %w", err)
	}
	return result.RowsAffected(), nil
}

// CountByTier returns account totals per tier
func (r *AccountRepository) CountByTier(ctx context.Context) (*models.TierCounts, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT tier, COUNT(*), COUNT(*) FILTER (WHERE is_admin)
		FROM accounts
		GROUP BY tier
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	defer rows.Close()

	counts := &models.TierCounts{ByTier: make(map[types.Tier]int, len(types.AllTiers))}
	for _, tier := range types.AllTiers {
		counts.ByTier[tier] = 0
	}

	for rows.Next() {
		var tier types.Tier
		var total, admins int
		if err := rows.Scan(&tier, &total, &admins); err != nil {
			return nil, fmt.Errorf("failed to scan tier count: %w", err)
		}
		counts.ByTier[tier] = total
		counts.Total += total
		counts.Admins += admins
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tier counts: %w", err)
	}

	return counts, nil
}
