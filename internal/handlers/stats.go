package handlers

import (
	"net/http"
	"strconv"

	"gif-converter/internal/database"
)

const maxRecentLimit = 100

// GetStats returns the conversion history summary.
// GET /api/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSONError(w, "Conversion history is disabled", http.StatusServiceUnavailable)
		return
	}

	stats, err := h.history.GetStats(r.Context())
	if err != nil {
		log.Error("failed to load conversion stats: %v", err)
		writeJSONError(w, "Failed to load stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, stats)
}

// GetRecent returns the newest history rows.
// GET /api/history?limit=N
func (h *Handlers) GetRecent(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSONError(w, "Conversion history is disabled", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		log.Error("failed to load conversion history: %v", err)
		writeJSONError(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []database.ConversionRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, records)
}
