package service

import (
	"context"
	"errors"
	"strings"

	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/metrics"
	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/storage"
	"github.com/trading-grow/internal/types"
)

// SubscriptionRepository interface for subscription request data operations
type SubscriptionRepository interface {
	CreatePending(ctx context.Context, req *models.SubscriptionRequest) error
	GetByID(ctx context.Context, id string) (*models.SubscriptionRequest, error)
	ListPending(ctx context.Context) ([]*models.SubscriptionRequest, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.SubscriptionRequest, error)
	Approve(ctx context.Context, id string) (*storage.DecisionResult, error)
	Reject(ctx context.Context, id string) (*models.SubscriptionRequest, error)
}

// SubscriptionService manages the subscription request workflow.
// A request is created pending and ends approved or rejected; both are terminal.
type SubscriptionService struct {
	requests SubscriptionRepository
	metrics  *metrics.Metrics
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(requests SubscriptionRepository, m *metrics.Metrics) *SubscriptionService {
	return &SubscriptionService{requests: requests, metrics: m}
}

// Submit files a request for account to move to requestedTier.
// Checks run in order: the account must not already hold the tier, the tier
// must be requestable (medium or pro), and the account must have no other
// pending request. Holding the tier wins over validity, so a free account
// asking for free gets ErrAlreadyAtTier.
func (s *SubscriptionService) Submit(ctx context.Context, account *models.Account, requestedTier types.Tier) (*models.SubscriptionRequest, error) {
	req, err := s.submit(ctx, account, requestedTier)
	s.observe("submit", err)
	return req, err
}

func (s *SubscriptionService) submit(ctx context.Context, account *models.Account, requestedTier types.Tier) (*models.SubscriptionRequest, error) {
	if account.Tier == requestedTier {
		return nil, types.WithDetails(types.ErrAlreadyAtTier, map[string]interface{}{"tier": requestedTier})
	}
	if !requestedTier.IsRequestable() {
		return nil, types.WithDetails(types.ErrInvalidTier, map[string]interface{}{"tier": requestedTier})
	}

	req := &models.SubscriptionRequest{
		AccountID:     account.ID,
		AccountEmail:  account.Email,
		RequestedTier: requestedTier,
		CurrentTier:   account.Tier,
	}
	if err := s.requests.CreatePending(ctx, req); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"request_id":     req.ID,
		"account_id":     account.ID,
		"requested_tier": requestedTier,
	}).Info("subscription request submitted")
	return req, nil
}

// Approve marks a pending request approved and moves its account to the
// requested tier atomically.
func (s *SubscriptionService) Approve(ctx context.Context, requestID string) (*storage.DecisionResult, error) {
	result, err := s.requests.Approve(ctx, requestID)
	s.observe("approve", err)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"request_id":      requestID,
		"account_id":      result.Request.AccountID,
		"tier":            result.Request.RequestedTier,
		"account_updated": result.AccountUpdated,
	}).Info("subscription request approved")
	return result, nil
}

// Reject marks a pending request rejected
func (s *SubscriptionService) Reject(ctx context.Context, requestID string) (*models.SubscriptionRequest, error) {
	req, err := s.requests.Reject(ctx, requestID)
	s.observe("reject", err)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithField("request_id", requestID).Info("subscription request rejected")
	return req, nil
}

// ListPending returns pending requests, newest first
func (s *SubscriptionService) ListPending(ctx context.Context) ([]*models.SubscriptionRequest, error) {
	return s.requests.ListPending(ctx)
}

// ListForAccount returns every request filed by an account, newest first
func (s *SubscriptionService) ListForAccount(ctx context.Context, accountID string) ([]*models.SubscriptionRequest, error) {
	return s.requests.ListByAccount(ctx, accountID)
}

func (s *SubscriptionService) observe(action string, err error) {
	s.metrics.ObserveSubscription(action, outcomeOf(err))
}

// outcomeOf turns an error into a metrics label: the service error code in
// lower case, or a generic error label.
func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		return strings.ToLower(svcErr.Code)
	}
	return metrics.OutcomeError
}
