package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// Constraint names declared in migrations/postgres
const (
	constraintAccountEmail      = "accounts_email_key"
	constraintOnePendingRequest = "subscription_requests_one_pending_idx"
	constraintWatchlistCategory = "watchlists_account_category_key"
	constraintStockSymbol       = "stocks_pkey"
)

// uniqueViolation reports whether err is a unique violation of constraint.
// An empty constraint matches any unique violation.
func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
