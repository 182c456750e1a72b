package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/trading-grow/internal/auth"
	apperrors "github.com/trading-grow/internal/errors"
	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/types"
)

// MockUserHeader names the account a request acts as when mock auth is enabled
const MockUserHeader = "X-User-ID"

// AuthMiddleware resolves the principal of a request once and stores it in
// the request context. Requests without credentials pass through anonymous;
// RequireAuth and RequireAdmin decide whether a route needs a principal.
// Presented but invalid credentials are rejected here with 401.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var principal auth.Principal
		switch {
		case bearerToken(r) != "":
			claims, err := s.tokens.Parse(bearerToken(r))
			if err != nil {
				respondError(w, http.StatusUnauthorized, ErrCodeInvalidToken, "invalid or expired session token", nil)
				return
			}

			if s.revocations != nil {
				revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
				if err != nil {
					respondServiceError(w, r, apperrors.NewServiceUnavailableError("session store"))
					return
				}
				if revoked {
					respondError(w, http.StatusUnauthorized, ErrCodeInvalidToken, "session token has been revoked", nil)
					return
				}
			}

			account, err := s.accounts.GetAccount(ctx, claims.AccountID())
			if err != nil {
				if errors.Is(err, types.ErrAccountNotFound) {
					respondError(w, http.StatusUnauthorized, ErrCodeInvalidToken, "session account no longer exists", nil)
					return
				}
				respondServiceError(w, r, err)
				return
			}
			principal = auth.NewCredentialedPrincipal(account, claims)

		case s.config.MockAuthEnabled && r.Header.Get(MockUserHeader) != "":
			accountID := strings.TrimSpace(r.Header.Get(MockUserHeader))
			account, err := s.accounts.GetAccount(ctx, accountID)
			if err != nil {
				if errors.Is(err, types.ErrAccountNotFound) {
					respondServiceError(w, r, apperrors.NewAuthenticationRequiredError("unknown mock user"))
					return
				}
				respondServiceError(w, r, err)
				return
			}
			principal = auth.NewMockPrincipal(account)
		}

		if principal == nil {
			next.ServeHTTP(w, r)
			return
		}

		notePrincipal(w, principal)
		ctx = auth.WithPrincipal(ctx, principal)
		ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(map[string]interface{}{
			"account_id": principal.AccountID(),
			"auth_kind":  string(principal.Kind()),
		}))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token of an "Authorization: Bearer" header
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// RequireAuth rejects requests that carry no principal
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
			respondServiceError(w, r, apperrors.NewAuthenticationRequiredError("authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose principal is not an admin
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			respondServiceError(w, r, apperrors.NewAuthenticationRequiredError("authentication required"))
			return
		}
		if !principal.IsAdmin() {
			respondServiceError(w, r, apperrors.NewForbiddenError("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// mustPrincipal returns the principal placed by AuthMiddleware. Routes using
// it are wrapped in RequireAuth, so a missing principal is a wiring bug.
func mustPrincipal(r *http.Request) auth.Principal {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		panic("api: handler reached without a principal")
	}
	return principal
}
