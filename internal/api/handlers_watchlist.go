package api

import (
	"net/http"

	"github.com/gorilla/mux"

	apperrors "github.com/trading-grow/internal/errors"
)

// handleListWatchlists handles GET /api/watchlists.
// First access creates the account's default watchlists; the response lists
// every watchlist of the account, defaults or not, oldest first.
func (s *Server) handleListWatchlists(w http.ResponseWriter, r *http.Request) {
	principal := mustPrincipal(r)

	watchlists, err := s.accountWatchlists(r, principal.AccountID())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"watchlists": watchlists})
}

// handleAddStock handles POST /api/watchlists/{id}/stocks
func (s *Server) handleAddStock(w http.ResponseWriter, r *http.Request) {
	principal := mustPrincipal(r)

	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.Symbol == "" {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("symbol", "is required"))
		return
	}

	stock, err := s.watchlists.AddStock(r.Context(), principal, mux.Vars(r)["id"], req.Symbol)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{"stock": stock})
}

// handleRemoveStock handles DELETE /api/watchlists/{id}/stocks/{symbol}
func (s *Server) handleRemoveStock(w http.ResponseWriter, r *http.Request) {
	principal := mustPrincipal(r)
	vars := mux.Vars(r)

	if err := s.watchlists.RemoveStock(r.Context(), principal, vars["id"], vars["symbol"]); err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
