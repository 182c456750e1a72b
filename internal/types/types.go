// Package types provides common type definitions for the trading-grow system.
package types

import (
	"regexp"
	"strings"
)

// Tier represents the subscription tier of an account
type Tier string

const (
	// TierFree is the default tier for new accounts
	TierFree Tier = "free"
	// TierMedium unlocks the medium feature set
	TierMedium Tier = "medium"
	// TierPro unlocks every feature
	TierPro Tier = "pro"
)

// AllTiers lists tiers from lowest to highest
var AllTiers = []Tier{TierFree, TierMedium, TierPro}

// IsValid reports whether t is a known tier
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierMedium, TierPro:
		return true
	}
	return false
}

// IsRequestable reports whether t may be the target of a subscription request.
// Free is reachable only through an admin override.
func (t Tier) IsRequestable() bool {
	return t == TierMedium || t == TierPro
}

// Category is the classification tag of a watchlist
type Category string

const (
	CategoryBreakout    Category = "breakout"
	CategorySpeculative Category = "speculative"
	CategoryNormal      Category = "normal"
)

// DefaultCategories are the categories seeded for every account, in seeding order
var DefaultCategories = []Category{CategoryBreakout, CategorySpeculative, CategoryNormal}

// RequestStatus represents the lifecycle state of a subscription request
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// CanonicalSymbol returns the stored form of an instrument symbol
func CanonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// IsValidSymbol reports whether a canonical symbol is well formed
func IsValidSymbol(symbol string) bool {
	return symbolPattern.MatchString(symbol)
}

// NormalizeEmail returns the form of an email used for storage and lookup.
// Emails are trimmed and lower-cased so that signups differing only by case collide.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Is matches service errors by code so that errors.Is works against the sentinels below
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewServiceError creates a ServiceError
func NewServiceError(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{Code: code, Message: message, Details: details}
}

// Error codes
const (
	CodeDuplicateEmail          = "DUPLICATE_EMAIL"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeInvalidTier             = "INVALID_TIER"
	CodeAlreadyAtTier           = "ALREADY_AT_TIER"
	CodeDuplicatePendingRequest = "DUPLICATE_PENDING_REQUEST"
	CodeRequestNotFound         = "REQUEST_NOT_FOUND"
	CodeRequestNotPending       = "REQUEST_NOT_PENDING"
	CodeWatchlistNotFound       = "WATCHLIST_NOT_FOUND"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeForbidden               = "FORBIDDEN"
	CodeDuplicateSymbol         = "DUPLICATE_SYMBOL"
	CodeSymbolLookupFailed      = "SYMBOL_LOOKUP_FAILED"
	CodeAccountNotFound         = "ACCOUNT_NOT_FOUND"
	CodeStockNotFound           = "STOCK_NOT_FOUND"
	CodeDuplicateStock          = "DUPLICATE_STOCK"
	CodeSectorNotFound          = "SECTOR_NOT_FOUND"
	CodeInvalidInput            = "INVALID_INPUT"
)

// Sentinel errors for errors.Is comparisons
var (
	ErrDuplicateEmail          = &ServiceError{Code: CodeDuplicateEmail, Message: "an account with this email already exists"}
	ErrInvalidCredentials      = &ServiceError{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	ErrInvalidTier             = &ServiceError{Code: CodeInvalidTier, Message: "invalid subscription tier"}
	ErrAlreadyAtTier           = &ServiceError{Code: CodeAlreadyAtTier, Message: "account is already at the requested tier"}
	ErrDuplicatePendingRequest = &ServiceError{Code: CodeDuplicatePendingRequest, Message: "a subscription request is already pending"}
	ErrRequestNotFound         = &ServiceError{Code: CodeRequestNotFound, Message: "subscription request not found"}
	ErrRequestNotPending       = &ServiceError{Code: CodeRequestNotPending, Message: "subscription request is not pending"}
	ErrWatchlistNotFound       = &ServiceError{Code: CodeWatchlistNotFound, Message: "watchlist not found"}
	ErrUnauthorized            = &ServiceError{Code: CodeUnauthorized, Message: "not authorized for this resource"}
	ErrForbidden               = &ServiceError{Code: CodeForbidden, Message: "admin access required"}
	ErrDuplicateSymbol         = &ServiceError{Code: CodeDuplicateSymbol, Message: "symbol already in watchlist"}
	ErrSymbolLookupFailed      = &ServiceError{Code: CodeSymbolLookupFailed, Message: "symbol lookup failed"}
	ErrAccountNotFound         = &ServiceError{Code: CodeAccountNotFound, Message: "account not found"}
	ErrStockNotFound           = &ServiceError{Code: CodeStockNotFound, Message: "stock not found"}
	ErrDuplicateStock          = &ServiceError{Code: CodeDuplicateStock, Message: "stock already in catalogue"}
	ErrSectorNotFound          = &ServiceError{Code: CodeSectorNotFound, Message: "sector not found"}
)

// WithDetails returns a copy of a sentinel carrying request specific details
func WithDetails(base *ServiceError, details map[string]interface{}) *ServiceError {
	return &ServiceError{Code: base.Code, Message: base.Message, Details: details}
}
