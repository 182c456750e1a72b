// Package models provides data models for the trading-grow system.
package models

import (
	"time"

	"github.com/trading-grow/internal/types"
)

// Account represents a registered user
type Account struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	DisplayName  string     `json:"displayName" db:"display_name"`
	PasswordHash *string    `json:"-" db:"password_hash"`
	Tier         types.Tier `json:"tier" db:"tier"`
	IsAdmin      bool       `json:"isAdmin" db:"is_admin"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

// HasPassword reports whether the account can log in with a password.
// Accounts created through federated login carry no hash.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// TierCounts holds the number of accounts on each tier
type TierCounts struct {
	Total  int                `json:"total"`
	ByTier map[types.Tier]int `json:"byTier"`
	Admins int                `json:"admins"`
}
