package auth

import (
	"context"

	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/types"
)

// PrincipalKind distinguishes how a principal was authenticated
type PrincipalKind string

const (
	// KindCredentialed principals presented a valid session token
	KindCredentialed PrincipalKind = "credentialed"
	// KindMock principals were asserted by the X-User-ID header in test mode
	KindMock PrincipalKind = "mock"
)

// Principal is the caller of a request, resolved once by the auth middleware.
// Business logic only sees this interface, never the way it was resolved.
type Principal interface {
	AccountID() string
	Email() string
	Tier() types.Tier
	IsAdmin() bool
	Kind() PrincipalKind
	Account() *models.Account
}

type accountPrincipal struct {
	account *models.Account
}

func (p accountPrincipal) AccountID() string        { return p.account.ID }
func (p accountPrincipal) Email() string            { return p.account.Email }
func (p accountPrincipal) Tier() types.Tier         { return p.account.Tier }
func (p accountPrincipal) IsAdmin() bool            { return p.account.IsAdmin }
func (p accountPrincipal) Account() *models.Account { return p.account }

// CredentialedPrincipal is a caller authenticated by a session token
type CredentialedPrincipal struct {
	accountPrincipal
	Claims *Claims
}

// NewCredentialedPrincipal creates a principal from a verified token
func NewCredentialedPrincipal(account *models.Account, claims *Claims) *CredentialedPrincipal {
	return &CredentialedPrincipal{accountPrincipal: accountPrincipal{account: account}, Claims: claims}
}

// Kind implements Principal
func (p *CredentialedPrincipal) Kind() PrincipalKind { return KindCredentialed }

// MockPrincipal is a caller asserted without credentials. It is only ever
// produced when mock authentication is enabled in configuration, and still
// refers to a persisted account.
type MockPrincipal struct {
	accountPrincipal
}

// NewMockPrincipal creates a mock principal for account
func NewMockPrincipal(account *models.Account) *MockPrincipal {
	return &MockPrincipal{accountPrincipal: accountPrincipal{account: account}}
}

// Kind implements Principal
func (p *MockPrincipal) Kind() PrincipalKind { return KindMock }

type principalKey struct{}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal of the request, if any
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p != nil
}
