package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/trading-grow/internal/auth"
	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/types"
)

// Repository interfaces for dependency injection

// AccountRepository interface for account data operations
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	List(ctx context.Context, limit, offset int) ([]*models.Account, error)
	UpdateTier(ctx context.Context, id string, tier types.Tier) error
	UpdateProfile(ctx context.Context, id, displayName string, isAdmin bool) error
	SetPassword(ctx context.Context, id, passwordHash string) error
	BulkUpdateTier(ctx context.Context, fromTier, toTier types.Tier) (int64, error)
	CountByTier(ctx context.Context) (*models.TierCounts, error)
}

// PasswordHasher hashes and verifies passwords. *auth.Hasher implements it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// AccountService handles signup, login and admin account management
type AccountService struct {
	accounts AccountRepository
	hasher   PasswordHasher

	dummyOnce sync.Once
	dummyHash string
}

// NewAccountService creates a new account service
func NewAccountService(accounts AccountRepository, hasher PasswordHasher) *AccountService {
	return &AccountService{
		accounts: accounts,
		hasher:   hasher,
	}
}

// CreateAccountInput represents input for creating an account.
// An empty Password creates an account that can only log in through a federated provider.
type CreateAccountInput struct {
	Email       string `json:"email"`
	Password    string `json:"password,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Admin account listing bounds
const (
	DefaultAccountPageSize = 50
	MaxAccountPageSize     = 200
)

func invalidInput(message string, details map[string]interface{}) *types.ServiceError {
	return types.NewServiceError(types.CodeInvalidInput, message, details)
}

// CreateAccount registers a new account on the free tier.
// The email is normalised before the uniqueness check.
func (s *AccountService) CreateAccount(ctx context.Context, input *CreateAccountInput) (*models.Account, error) {
	email := types.NormalizeEmail(input.Email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return nil, invalidInput("a valid email address is required", map[string]interface{}{"email": input.Email})
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = email[:at]
	}

	account := &models.Account{
		Email:       email,
		DisplayName: displayName,
		Tier:        types.TierFree,
	}

	if input.Password != "" {
		hash, err := s.hasher.Hash(input.Password)
		if err != nil {
			if auth.IsPasswordTooShort(err) {
				return nil, invalidInput(err.Error(), nil)
			}
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		account.PasswordHash = &hash
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"account_id": account.ID,
		"federated":  !account.HasPassword(),
	}).Info("account created")
	return account, nil
}

// VerifyCredentials returns the account matching email and password.
// Unknown emails, accounts without a password and wrong passwords all fail
// with the same ErrInvalidCredentials, and all pay for one bcrypt comparison.
func (s *AccountService) VerifyCredentials(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := s.accounts.GetByEmail(ctx, types.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, types.ErrAccountNotFound) {
			return nil, err
		}
		account = nil
	}

	if account == nil || !account.HasPassword() {
		s.hasher.Verify(password, s.placeholderHash())
		return nil, types.ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, *account.PasswordHash) {
		return nil, types.ErrInvalidCredentials
	}
	return account, nil
}

// placeholderHash is compared against when there is no real hash to check
func (s *AccountService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("placeholder-password-never-matches")
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

// GetAccount retrieves an account by ID
func (s *AccountService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// ListAccounts returns a page of accounts, newest first
func (s *AccountService) ListAccounts(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	if limit <= 0 {
		limit = DefaultAccountPageSize
	}
	if limit > MaxAccountPageSize {
		limit = MaxAccountPageSize
	}
	if offset < 0 {
		offset = 0
	}

	accounts, err := s.accounts.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	return accounts, nil
}

// TierCounts returns account totals per tier for the admin dashboard
func (s *AccountService) TierCounts(ctx context.Context) (*models.TierCounts, error) {
	return s.accounts.CountByTier(ctx)
}

// SetTier is the admin override of an account's tier. Unlike a subscription
// request it may target any tier, including free.
func (s *AccountService) SetTier(ctx context.Context, accountID string, tier types.Tier) (*models.Account, error) {
	if !tier.IsValid() {
		return nil, types.WithDetails(types.ErrInvalidTier, map[string]interface{}{"tier": tier})
	}
	if err := s.accounts.UpdateTier(ctx, accountID, tier); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"account_id": accountID,
		"tier":       tier,
	}).Info("account tier overridden by admin")
	return s.accounts.GetByID(ctx, accountID)
}

// SetAdmin grants or revokes the admin flag
func (s *AccountService) SetAdmin(ctx context.Context, accountID string, isAdmin bool) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.IsAdmin == isAdmin {
		return account, nil
	}
	if err := s.accounts.UpdateProfile(ctx, accountID, account.DisplayName, isAdmin); err != nil {
		return nil, err
	}
	account.IsAdmin = isAdmin
	return account, nil
}

// maxDisplayNameLength bounds display names, in characters
const maxDisplayNameLength = 100

// SetDisplayName renames an account. Names are trimmed and must not be empty.
func (s *AccountService) SetDisplayName(ctx context.Context, accountID, displayName string) (*models.Account, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, invalidInput("display name is required", map[string]interface{}{"accountId": accountID})
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return nil, invalidInput("display name is too long", map[string]interface{}{"maxLength": maxDisplayNameLength})
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.DisplayName == displayName {
		return account, nil
	}
	if err := s.accounts.UpdateProfile(ctx, accountID, displayName, account.IsAdmin); err != nil {
		return nil, err
	}
	account.DisplayName = displayName
	return account, nil
}

// BulkUpgrade moves every non-admin account on fromTier to toTier
func (s *AccountService) BulkUpgrade(ctx context.Context, fromTier, toTier types.Tier) (int64, error) {
	if !fromTier.IsValid() {
		return 0, types.WithDetails(types.ErrInvalidTier, map[string]interface{}{"tier": fromTier})
	}
	if !toTier.IsValid() {
		return 0, types.WithDetails(types.ErrInvalidTier, map[string]interface{}{"tier": toTier})
	}
	if fromTier == toTier {
		return 0, invalidInput("source and target tier must differ", map[string]interface{}{"tier": toTier})
	}

	moved, err := s.accounts.BulkUpdateTier(ctx, fromTier, toTier)
	if err != nil {
		return 0, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"from":  fromTier,
		"to":    toTier,
		"moved": moved,
	}).Info("bulk tier update applied")
	return moved, nil
}

// EnsureAdmin creates an admin account on the pro tier, or promotes the
// existing account with that email. A non-empty password replaces the stored one.
// The boolean result reports whether the account was created.
func (s *AccountService) EnsureAdmin(ctx context.Context, input *CreateAccountInput) (*models.Account, bool, error) {
	existing, err := s.accounts.GetByEmail(ctx, types.NormalizeEmail(input.Email))
	switch {
	case err == nil:
	case errors.Is(err, types.ErrAccountNotFound):
		account, err := s.CreateAccount(ctx, input)
		if err != nil {
			return nil, false, err
		}
		if err := s.promote(ctx, account, input.DisplayName); err != nil {
			return nil, false, err
		}
		return account, true, nil
	default:
		return nil, false, err
	}

	if input.Password != "" {
		hash, err := s.hasher.Hash(input.Password)
		if err != nil {
			if auth.IsPasswordTooShort(err) {
				return nil, false, invalidInput(err.Error(), nil)
			}
			return nil, false, fmt.Errorf("failed to hash password: %w", err)
		}
		if err := s.accounts.SetPassword(ctx, existing.ID, hash); err != nil {
			return nil, false, err
		}
		existing.PasswordHash = &hash
	}
	if err := s.promote(ctx, existing, input.DisplayName); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *AccountService) promote(ctx context.Context, account *models.Account, displayName string) error {
	if displayName = strings.TrimSpace(displayName); displayName == "" {
		displayName = account.DisplayName
	}
	if err := s.accounts.UpdateProfile(ctx, account.ID, displayName, true); err != nil {
		return err
	}
	if err := s.accounts.UpdateTier(ctx, account.ID, types.TierPro); err != nil {
		return err
	}
	account.DisplayName = displayName
	account.IsAdmin = true
	account.Tier = types.TierPro
	return nil
}
