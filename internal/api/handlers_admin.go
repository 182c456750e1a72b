package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/trading-grow/internal/errors"
	"github.com/trading-grow/internal/service"
	"github.com/trading-grow/internal/types"
)

// DashboardStats is the admin dashboard summary
type DashboardStats struct {
	TotalUsers      int                `json:"totalUsers"`
	ByTier          map[types.Tier]int `json:"byTier"`
	Admins          int                `json:"admins"`
	PendingRequests int                `json:"pendingRequests"`
}

// handleListAccounts handles GET /api/admin/accounts?limit=&offset=
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.DefaultAccountPageSize)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	accounts, err := s.accounts.ListAccounts(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
		"offset":   max(offset, 0),
	})
}

// handleStats handles GET /api/admin/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.accounts.TierCounts(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	pending, err := s.subscriptions.ListPending(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, DashboardStats{
		TotalUsers:      counts.Total,
		ByTier:          counts.ByTier,
		Admins:          counts.Admins,
		PendingRequests: len(pending),
	})
}

// handleSetTier handles PUT /api/admin/accounts/{id}/tier
func (s *Server) handleSetTier(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier types.Tier `json:"tier"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	account, err := s.accounts.SetTier(r.Context(), mux.Vars(r)["id"], req.Tier)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, account)
}

// handleSetAdmin handles PUT /api/admin/accounts/{id}/admin
func (s *Server) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsAdmin *bool `json:"isAdmin"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.IsAdmin == nil {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("isAdmin", "is required"))
		return
	}

	account, err := s.accounts.SetAdmin(r.Context(), mux.Vars(r)["id"], *req.IsAdmin)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, account)
}

// handleUpdateProfile handles PUT /api/admin/accounts/{id}.
// Tier and admin flag have their own endpoints; only the display name is edited here.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName *string `json:"displayName"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.DisplayName == nil {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("displayName", "is required"))
		return
	}

	account, err := s.accounts.SetDisplayName(r.Context(), mux.Vars(r)["id"], *req.DisplayName)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, account)
}

// handleBulkUpgrade handles POST /api/admin/accounts/bulk-upgrade
func (s *Server) handleBulkUpgrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromTier types.Tier `json:"fromTier"`
		ToTier   types.Tier `json:"toTier"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	updated, err := s.accounts.BulkUpgrade(r.Context(), req.FromTier, req.ToTier)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"fromTier": req.FromTier,
		"toTier":   req.ToTier,
		"updated":  updated,
	})
}

// handleAddCatalogStock handles POST /api/admin/stocks
func (s *Server) handleAddCatalogStock(w http.ResponseWriter, r *http.Request) {
	var req service.AddCatalogStockInput
	if err := parseJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	stock, err := s.catalog.Add(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, stock)
}

// handleDeleteCatalogStock handles DELETE /api/admin/stocks/{symbol}
func (s *Server) handleDeleteCatalogStock(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if err := s.catalog.Delete(r.Context(), symbol); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"symbol":  types.CanonicalSymbol(symbol),
	})
}

// queryInt parses an integer query parameter, falling back to def when absent
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidParameterError(name, "must be an integer")
	}
	return value, nil
}

// handleMarketDataBudget handles GET /api/admin/market-data/budget
func (s *Server) handleMarketDataBudget(w http.ResponseWriter, r *http.Request) {
	if s.budget == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}

	usage, err := s.budget.Usage(r.Context())
	if err != nil {
		respondServiceError(w, r, apperrors.NewServiceUnavailableError("call budget"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"usage":   usage,
	})
}
