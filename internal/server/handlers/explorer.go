// internal/server/handlers/explorer.go

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sfportal/internal/domain/incident"
	"sfportal/internal/service/explorer"
)

// ExplorerHandler handles explorer session requests
type ExplorerHandler struct {
	manager *explorer.Manager
}

// NewExplorerHandler creates a new explorer handler
func NewExplorerHandler(manager *explorer.Manager) *ExplorerHandler {
	return &ExplorerHandler{
		manager: manager,
	}
}

// CreateSession opens a new explorer session and starts loading the default
// batch
func (h *ExplorerHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.manager.Create()
	respondWithJSON(w, http.StatusCreated, session.View())
}

// GetSession returns the current view snapshot for a session
func (h *ExplorerHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session := h.sessionFromURL(w, r)
	if session == nil {
		return
	}

	respondWithJSON(w, http.StatusOK, session.View())
}

// filterPayload is the wire form of the explorer filter criteria
type filterPayload struct {
	Sources  []string `json:"sources"`
	Category string   `json:"category"`
	DateFrom string   `json:"date_from"`
	DateTo   string   `json:"date_to"`
	Limit    int      `json:"limit"`
}

// SetFilters replaces the session's filter criteria
func (h *ExplorerHandler) SetFilters(w http.ResponseWriter, r *http.Request) {
	session := h.sessionFromURL(w, r)
	if session == nil {
		return
	}

	var payload filterPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	criteria, err := criteriaFromPayload(payload)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid filters", err)
		return
	}

	if err := session.SetCriteria(criteria); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid filters", err)
		return
	}

	respondWithJSON(w, http.StatusOK, session.View())
}

// RefreshSession re-fetches the session's batch with its current criteria
func (h *ExplorerHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	session := h.sessionFromURL(w, r)
	if session == nil {
		return
	}

	session.Refresh()
	respondWithJSON(w, http.StatusAccepted, session.View())
}

// DeleteSession closes a session
func (h *ExplorerHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing session ID", nil)
		return
	}

	if err := h.manager.Delete(id); err != nil {
		if errors.Is(err, explorer.ErrSessionNotFound) {
			respondWithError(w, http.StatusNotFound, "Session not found", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to delete session", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// sessionFromURL resolves the session named in the URL, writing the error
// response itself when the lookup fails
func (h *ExplorerHandler) sessionFromURL(w http.ResponseWriter, r *http.Request) *explorer.Session {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing session ID", nil)
		return nil
	}

	session, err := h.manager.Get(id)
	if err != nil {
		if errors.Is(err, explorer.ErrSessionNotFound) {
			respondWithError(w, http.StatusNotFound, "Session not found", nil)
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to load session", err)
		}
		return nil
	}

	return session
}

// criteriaFromPayload converts the wire filters into domain criteria.
// Unset fields keep their defaults so a partial payload behaves sensibly.
func criteriaFromPayload(p filterPayload) (incident.Criteria, error) {
	criteria := incident.DefaultCriteria()

	if p.Sources != nil {
		sources := make([]incident.SourceTable, 0, len(p.Sources))
		for _, s := range p.Sources {
			sources = append(sources, incident.SourceTable(s))
		}
		criteria.Sources = sources
	}

	if p.Category != "" {
		criteria.Category = p.Category
	}

	if p.DateFrom != "" {
		from, err := parseFilterTime(p.DateFrom, false)
		if err != nil {
			return incident.Criteria{}, fmt.Errorf("invalid date_from: %w", err)
		}
		criteria.From = from
	}

	if p.DateTo != "" {
		to, err := parseFilterTime(p.DateTo, true)
		if err != nil {
			return incident.Criteria{}, fmt.Errorf("invalid date_to: %w", err)
		}
		criteria.To = to
	}

	if p.Limit > 0 {
		criteria.Limit = p.Limit
	}

	return criteria, nil
}

// parseFilterTime accepts either a full timestamp or a bare date. A bare
// date used as an upper bound covers the whole day.
func parseFilterTime(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
