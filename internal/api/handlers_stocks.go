package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/trading-grow/internal/errors"
	"github.com/trading-grow/internal/service"
)

// defaultHistoryWindow applies when /history is called without since
const defaultHistoryWindow = 7 * 24 * time.Hour

// handleListStocks handles GET /api/stocks
func (s *Server) handleListStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.catalog.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stocks": stocks,
		"count":  len(stocks),
	})
}

// handleStocksByIndustry handles GET /api/stocks/by-industry
func (s *Server) handleStocksByIndustry(w http.ResponseWriter, r *http.Request) {
	index, err := s.catalog.ByIndustry(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, index)
}

// handleSearchStocks handles GET /api/stocks/search?q=&limit=
func (s *Server) handleSearchStocks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.DefaultSearchLimit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	query := r.URL.Query().Get("q")
	stocks, err := s.catalog.Search(r.Context(), query, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": stocks,
		"count":   len(stocks),
	})
}

// handleGetStock handles GET /api/stocks/{symbol}
func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.catalog.Quote(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// handleStockHistory handles GET /api/stocks/{symbol}/history?since=&limit=
func (s *Server) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-defaultHistoryWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondServiceError(w, r, apperrors.NewInvalidParameterError("since", "must be an RFC 3339 timestamp"))
			return
		}
		since = parsed
	}
	limit, err := queryInt(r, "limit", service.DefaultHistoryLimit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	symbol := mux.Vars(r)["symbol"]
	points, err := s.catalog.History(r.Context(), symbol, since, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"since":  since,
		"points": points,
		"count":  len(points),
	})
}

// handleSectorData handles GET /api/sector-data?sector=
// Without a sector every sector is returned, keyed by name.
func (s *Server) handleSectorData(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("sector"); name != "" {
		sector, err := s.catalog.Sector(r.Context(), name)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sector)
		return
	}

	sectors, err := s.catalog.SectorData(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sectors)
}
