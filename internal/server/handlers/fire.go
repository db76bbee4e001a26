// internal/server/handlers/fire.go

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"sfportal/internal/service/stats"
)

// FireHandler handles the fire department analytics queries
type FireHandler struct {
	service *stats.Service
}

// NewFireHandler creates a new fire handler
func NewFireHandler(service *stats.Service) *FireHandler {
	return &FireHandler{
		service: service,
	}
}

// GetSituationActions returns the most common primary situations with their
// most frequent action taken
func (h *FireHandler) GetSituationActions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.PrimarySituationActions(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load situation actions", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"situations": rows,
		"count":      len(rows),
	})
}

// GetIncompleteInspections returns fire inspections that never closed
func (h *FireHandler) GetIncompleteInspections(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		value, err := strconv.Atoi(limitStr)
		if err != nil || value < 1 || value > 100 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 100", err)
			return
		}
		limit = value
	}

	inspections, err := h.service.IncompleteInspections(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load inspections", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"inspections": inspections,
		"count":       len(inspections),
	})
}

// GetTopFireNeighborhoods returns the neighborhoods with the most fire
// incidents over the recent years
func (h *FireHandler) GetTopFireNeighborhoods(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		value, err := strconv.Atoi(limitStr)
		if err != nil || value < 1 || value > 100 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 100", err)
			return
		}
		limit = value
	}

	years := 3
	if yearsStr := r.URL.Query().Get("years"); yearsStr != "" {
		value, err := strconv.Atoi(yearsStr)
		if err != nil || value < 1 || value > 5 {
			respondWithError(w, http.StatusBadRequest, "years must be between 1 and 5", err)
			return
		}
		years = value
	}

	rankings, err := h.service.TopFireNeighborhoods(r.Context(), limit, years)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load fire neighborhoods", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"rankings": rankings,
		"count":    len(rankings),
	})
}

// GetResponseTimes returns SFFD dispatch-to-arrival times per call type
func (h *FireHandler) GetResponseTimes(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		value, err := strconv.Atoi(limitStr)
		if err != nil || value < 1 || value > 100 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 100", err)
			return
		}
		limit = value
	}

	sortBy := r.URL.Query().Get("sort_by")
	if sortBy == "" {
		sortBy = "avg_response"
	}
	switch sortBy {
	case "avg_response", "min_response", "max_response":
	default:
		respondWithError(w, http.StatusBadRequest, "Invalid sort_by", nil)
		return
	}

	order := strings.ToUpper(r.URL.Query().Get("order"))
	if order == "" {
		order = "DESC"
	}
	if order != "ASC" && order != "DESC" {
		respondWithError(w, http.StatusBadRequest, "Invalid order", nil)
		return
	}

	rows, err := h.service.ResponseTimes(r.Context(), limit, sortBy, order)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load response times", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"response_times": rows,
		"count":          len(rows),
	})
}
