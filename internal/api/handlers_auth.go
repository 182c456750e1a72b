package api

import (
	"net/http"
	"time"

	"github.com/trading-grow/internal/auth"
	apperrors "github.com/trading-grow/internal/errors"
	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/service"
)

// SessionResponse is returned by signup and login
type SessionResponse struct {
	User      *models.Account `json:"user"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// handleSignup handles POST /api/auth/signup
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	// Password-less accounts are federated only and never created over HTTP
	if req.Password == "" {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("password", "is required"))
		return
	}

	account, err := s.accounts.CreateAccount(r.Context(), &service.CreateAccountInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.Username,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	s.respondSession(w, r, http.StatusCreated, account)
}

// handleLogin handles POST /api/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	account, err := s.accounts.VerifyCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	s.respondSession(w, r, http.StatusOK, account)
}

func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, status int, account *models.Account) {
	token, claims, err := s.tokens.Issue(account)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, status, SessionResponse{
		User:      account,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}

// handleLogout handles POST /api/auth/logout. The presented token stays
// revoked until it would have expired. Mock principals hold no token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal := mustPrincipal(r)

	if credentialed, ok := principal.(*auth.CredentialedPrincipal); ok && s.revocations != nil {
		claims := credentialed.Claims
		if err := s.revocations.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			respondServiceError(w, r, err)
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleMe handles GET /api/auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal := mustPrincipal(r)

	watchlists, err := s.accountWatchlists(r, principal.AccountID())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	// Sector data is best effort; the dashboard renders without it
	sectors, err := s.catalog.SectorData(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("sector data unavailable")
		sectors = map[string]*models.SectorPerformance{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user":       principal.Account(),
		"watchlists": watchlists,
		"sectorData": sectors,
	})
}

// accountWatchlists makes sure the account holds its default watchlists,
// then returns every watchlist it owns in creation order
func (s *Server) accountWatchlists(r *http.Request, accountID string) ([]*models.Watchlist, error) {
	if _, err := s.watchlists.GetOrCreateDefaults(r.Context(), accountID); err != nil {
		return nil, err
	}
	return s.watchlists.ListWatchlists(r.Context(), accountID)
}
