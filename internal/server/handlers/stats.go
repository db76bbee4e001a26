// internal/server/handlers/stats.go

package handlers

import (
	"net/http"
	"strconv"

	"sfportal/internal/adapter/storage"
	"sfportal/internal/service/stats"
)

// StatsHandler handles the citywide analytics queries
type StatsHandler struct {
	service *stats.Service
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(service *stats.Service) *StatsHandler {
	return &StatsHandler{
		service: service,
	}
}

// GetTopNeighborhoods returns neighborhoods ranked by total incidents
func (h *StatsHandler) GetTopNeighborhoods(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		value, err := strconv.Atoi(limitStr)
		if err != nil || value < 1 || value > 100 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 100", err)
			return
		}
		limit = value
	}

	var minIncidents *int
	if minStr := r.URL.Query().Get("min_incidents"); minStr != "" {
		value, err := strconv.Atoi(minStr)
		if err != nil || value < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid min_incidents", err)
			return
		}
		minIncidents = &value
	}

	neighborhoods, err := h.service.TopNeighborhoods(r.Context(), limit, minIncidents)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load neighborhood stats", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"neighborhoods": neighborhoods,
		"summary":       storage.SummarizeNeighborhoods(neighborhoods),
	})
}

// GetDangerAnalysis returns incident concentrations by neighborhood, time of
// day and day type
func (h *StatsHandler) GetDangerAnalysis(w http.ResponseWriter, r *http.Request) {
	filter := storage.DangerFilter{
		Neighborhood: r.URL.Query().Get("neighborhood"),
		TimePeriod:   r.URL.Query().Get("time_period"),
		DayType:      r.URL.Query().Get("day_type"),
		TopN:         10,
	}

	switch filter.TimePeriod {
	case "", "Morning", "Afternoon", "Evening", "Night":
	default:
		respondWithError(w, http.StatusBadRequest, "time_period must be one of Morning, Afternoon, Evening, Night", nil)
		return
	}

	switch filter.DayType {
	case "", "Weekday", "Weekend":
	default:
		respondWithError(w, http.StatusBadRequest, "day_type must be Weekday or Weekend", nil)
		return
	}

	if topNStr := r.URL.Query().Get("top_n"); topNStr != "" {
		value, err := strconv.Atoi(topNStr)
		if err != nil || value < 1 || value > 100 {
			respondWithError(w, http.StatusBadRequest, "top_n must be between 1 and 100", err)
			return
		}
		filter.TopN = value
	}

	rows, err := h.service.DangerAnalysis(r.Context(), filter)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load danger analysis", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"results": rows,
		"count":   len(rows),
	})
}

// GetTypeBreakdown returns the crime/fire incident split
func (h *StatsHandler) GetTypeBreakdown(w http.ResponseWriter, r *http.Request) {
	crime, fire, err := h.service.TypeBreakdown(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load type breakdown", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{
		"crime": crime,
		"fire":  fire,
		"total": crime + fire,
	})
}

// GetMonthlyIncidents returns per-month crime and fire counts
func (h *StatsHandler) GetMonthlyIncidents(w http.ResponseWriter, r *http.Request) {
	months, err := h.service.MonthlyIncidents(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load monthly incidents", err)
		return
	}

	// Keyed by month for the charting layer
	payload := make(map[string]storage.MonthlyCount, len(months))
	for _, m := range months {
		payload[m.Month] = m
	}

	respondWithJSON(w, http.StatusOK, payload)
}

// GetTopCrimeCategories returns the most reported crime categories
func (h *StatsHandler) GetTopCrimeCategories(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		value, err := strconv.Atoi(limitStr)
		if err != nil || value < 1 || value > 100 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 100", err)
			return
		}
		limit = value
	}

	categories, err := h.service.TopCrimeCategories(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load crime categories", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}
