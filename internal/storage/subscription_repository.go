package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/types"
)

// SubscriptionRepository handles subscription request persistence
type SubscriptionRepository struct {
	db *PostgresDB
}

// NewSubscriptionRepository creates a new subscription request repository
func NewSubscriptionRepository(db *PostgresDB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// DecisionResult describes what an approval or rejection changed
type DecisionResult struct {
	Request *models.SubscriptionRequest
	// AccountUpdated is false when an approved request's account no longer exists
	AccountUpdated bool
}

const requestSelect = `
	SELECT r.id, r.account_id, COALESCE(a.email, ''), r.requested_tier, r.current_tier,
	       r.status, r.created_at, r.updated_at, r.processed_at
	FROM subscription_requests r
	LEFT JOIN accounts a ON a.id = r.account_id
`

func scanRequest(row pgx.Row) (*models.SubscriptionRequest, error) {
	var req models.SubscriptionRequest
	err := row.Scan(
		&req.ID,
		&req.AccountID,
		&req.AccountEmail,
		&req.RequestedTier,
		&req.CurrentTier,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CreatePending inserts a pending request. The partial unique index on
// (account_id) WHERE status = 'pending' makes concurrent submissions for the
// same account race safely: the loser gets types.ErrDuplicatePendingRequest.
func (r *SubscriptionRepository) CreatePending(ctx context.Context, req *models.SubscriptionRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	req.Status = types.RequestPending
	req.CreatedAt = now
	req.UpdatedAt = now
	req.ProcessedAt = nil

	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO subscription_requests
			(id, account_id, requested_tier, current_tier, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		req.ID,
		req.AccountID,
		req.RequestedTier,
		req.CurrentTier,
		req.Status,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, constraintOnePendingRequest) {
			return types.WithDetails(types.ErrDuplicatePendingRequest, map[string]interface{}{"accountId": req.AccountID})
		}
		return fmt.Errorf("failed to create subscription request: %w", err)
	}
	return nil
}

// GetByID retrieves a request by ID
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*models.SubscriptionRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, types.WithDetails(types.ErrRequestNotFound, map[string]interface{}{"requestId": id})
	}

	req, err := scanRequest(r.db.Pool().QueryRow(ctx, requestSelect+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.WithDetails(types.ErrRequestNotFound, map[string]interface{}{"requestId": id})
		}
		return nil, fmt.Errorf("failed to get subscription request: %w", err)
	}
	return req, nil
}

// ListPending returns pending requests, newest first
func (r *SubscriptionRepository) ListPending(ctx context.Context) ([]*models.SubscriptionRequest, error) {
	return r.list(ctx, requestSelect+` WHERE r.status = 'pending' ORDER BY r.created_at DESC, r.id`)
}

// ListByAccount returns every request of an account, newest first
func (r *SubscriptionRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.SubscriptionRequest, error) {
	return r.list(ctx, requestSelect+` WHERE r.account_id = $1 ORDER BY r.created_at DESC, r.id`, accountID)
}

func (r *SubscriptionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.SubscriptionRequest, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription requests: %w", err)
	}
	defer rows.Close()

	requests := make([]*models.SubscriptionRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription requests: %w", err)
	}
	return requests, nil
}

// Approve marks a pending request approved and moves the owning account to
// the requested tier in the same transaction. If the account no longer
// exists the request is still approved and AccountUpdated is false.
func (r *SubscriptionRepository) Approve(ctx context.Context, id string) (*DecisionResult, error) {
	var result DecisionResult

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		req, err := r.lockPending(ctx, tx, id)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET tier = $2, updated_at = NOW() WHERE id = $1`,
			req.AccountID, req.RequestedTier,
		)
		if err != nil {
			return fmt.Errorf("failed to update account tier: %w", err)
		}
		result.AccountUpdated = tag.RowsAffected() > 0
		if !result.AccountUpdated {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"request_id": req.ID,
				"account_id": req.AccountID,
			}).Warn("approving subscription request for missing account; tier update skipped")
		}

		if err := r.setStatus(ctx, tx, req, types.RequestApproved); err != nil {
			return err
		}
		result.Request = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Reject marks a pending request rejected. Nothing else changes.
func (r *SubscriptionRepository) Reject(ctx context.Context, id string) (*models.SubscriptionRequest, error) {
	var rejected *models.SubscriptionRequest

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		req, err := r.lockPending(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := r.setStatus(ctx, tx, req, types.RequestRejected); err != nil {
			return err
		}
		rejected = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}

// lockPending loads a request with a row lock and checks it is still pending
func (r *SubscriptionRepository) lockPending(ctx context.Context, tx pgx.Tx, id string) (*models.SubscriptionRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, types.WithDetails(types.ErrRequestNotFound, map[string]interface{}{"requestId": id})
	}

	var req models.SubscriptionRequest
	err := tx.QueryRow(ctx, `
		SELECT id, account_id, requested_tier, current_tier, status, created_at, updated_at, processed_at
		FROM subscription_requests
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&req.ID,
		&req.AccountID,
		&req.RequestedTier,
		&req.CurrentTier,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.WithDetails(types.ErrRequestNotFound, map[string]interface{}{"requestId": id})
		}
		return nil, fmt.Errorf("failed to lock subscription request: %w", err)
	}

	if !req.IsPending() {
		return nil, types.WithDetails(types.ErrRequestNotPending, map[string]interface{}{
			"requestId": id,
			"status":    req.Status,
		})
	}
	return &req, nil
}

func (r *SubscriptionRepository) setStatus(ctx context.Context, tx pgx.Tx, req *models.SubscriptionRequest, status types.RequestStatus) error {
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE subscription_requests SET status = $2, updated_at = $3, processed_at = $3 WHERE id = $1`,
		req.ID, status, now,
	); err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	req.Status = status
	req.UpdatedAt = now
	req.ProcessedAt = &now
	return nil
}
