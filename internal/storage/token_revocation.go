package storage

import (
	"context"
	"fmt"
	"time"
)

const revokedTokenPrefix = "revoked:"

// TokenRevocationStore records revoked session token IDs in Redis until the
// token would have expired anyway.
type TokenRevocationStore struct {
	redis *RedisCache
}

// NewTokenRevocationStore creates a new revocation store
func NewTokenRevocationStore(redis *RedisCache) *TokenRevocationStore {
	return &TokenRevocationStore{redis: redis}
}

// Revoke marks tokenID as revoked until expiresAt
func (s *TokenRevocationStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, revokedTokenPrefix+tokenID, "1", ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID has been revoked
func (s *TokenRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	revoked, err := s.redis.Exists(ctx, revokedTokenPrefix+tokenID)
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return revoked, nil
}
