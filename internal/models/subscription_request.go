package models

import (
	"time"

	"github.com/trading-grow/internal/types"
)

// SubscriptionRequest is an account's request to move to another tier
type SubscriptionRequest struct {
	ID            string              `json:"id" db:"id"`
	AccountID     string              `json:"accountId" db:"account_id"`
	AccountEmail  string              `json:"accountEmail,omitempty" db:"account_email"`
	RequestedTier types.Tier          `json:"requestedTier" db:"requested_tier"`
	CurrentTier   types.Tier          `json:"currentTier" db:"current_tier"`
	Status        types.RequestStatus `json:"status" db:"status"`
	CreatedAt     time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time           `json:"updatedAt" db:"updated_at"`
	ProcessedAt   *time.Time          `json:"processedAt,omitempty" db:"processed_at"`
}

// IsPending reports whether the request still awaits an admin decision
func (r *SubscriptionRequest) IsPending() bool {
	return r.Status == types.RequestPending
}
