package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trading-grow/internal/types"
)

// handleRequestSubscription handles POST /api/user/request-subscription
func (s *Server) handleRequestSubscription(w http.ResponseWriter, r *http.Request) {
	principal := mustPrincipal(r)

	var req struct {
		Tier types.Tier `json:"tier"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	request, err := s.subscriptions.Submit(r.Context(), principal.Account(), req.Tier)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, request)
}

// handleListOwnRequests handles GET /api/user/subscription-requests
func (s *Server) handleListOwnRequests(w http.ResponseWriter, r *http.Request) {
	principal := mustPrincipal(r)

	requests, err := s.subscriptions.ListForAccount(r.Context(), principal.AccountID())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}

// handleListPendingRequests handles GET /api/admin/subscription-requests
func (s *Server) handleListPendingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.subscriptions.ListPending(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}

// handleApproveRequest handles POST /api/admin/subscription-requests/{id}/approve
func (s *Server) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	result, err := s.subscriptions.Approve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"request":        result.Request,
		"accountUpdated": result.AccountUpdated,
	})
}

// handleRejectRequest handles POST /api/admin/subscription-requests/{id}/reject
func (s *Server) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	request, err := s.subscriptions.Reject(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"request": request})
}
