// internal/server/handlers/incident.go

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"sfportal/internal/adapter/storage"
	"sfportal/internal/domain/incident"
)

// IncidentHandler handles the combined incident timeline
type IncidentHandler struct {
	store *storage.IncidentStore
}

// NewIncidentHandler creates a new incident handler
func NewIncidentHandler(store *storage.IncidentStore) *IncidentHandler {
	return &IncidentHandler{
		store: store,
	}
}

// timelinePayload is the timeline response envelope
type timelinePayload struct {
	Data    []storage.TimelineRow `json:"data"`
	Count   int                   `json:"count"`
	Sources map[string]int        `json:"sources"`
}

// GetTimeline returns recent incidents from the selected sources, newest
// first
func (h *IncidentHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	opts := storage.TimelineOptions{
		Limit: 1000,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		opts.Limit = limit
	}

	if source := r.URL.Query().Get("source"); source != "" {
		st := incident.SourceTable(source)
		if !st.Valid() {
			respondWithError(w, http.StatusBadRequest, "Unknown source table", nil)
			return
		}
		opts.Source = st
	}

	if prioritize := r.URL.Query().Get("prioritize_coords"); prioritize != "" {
		value, err := strconv.ParseBool(prioritize)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid prioritize_coords", err)
			return
		}
		opts.PrioritizeCoords = value
	}

	rows, counts, err := h.store.Timeline(r.Context(), opts)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load timeline", err)
		return
	}

	if rows == nil {
		rows = []storage.TimelineRow{}
	}

	respondWithJSON(w, http.StatusOK, timelinePayload{
		Data:    rows,
		Count:   len(rows),
		Sources: counts,
	})
}

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil && code < 500 {
		response["detail"] = err.Error()
	}

	jsonResponse, _ := json.Marshal(response)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(jsonResponse)
}
