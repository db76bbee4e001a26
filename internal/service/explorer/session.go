package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sfportal/internal/adapter/upstream"
	"sfportal/internal/domain/geo"
	"sfportal/internal/domain/incident"
)

// Fetcher retrieves timeline batches from the incidents API
type Fetcher interface {
	Timeline(ctx context.Context, q upstream.TimelineQuery) ([]incident.Record, error)
}

// Publisher pushes view snapshots to the event bus
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ViewSubject is the bus subject carrying snapshots for one session
func ViewSubject(prefix, sessionID string) string {
	return fmt.Sprintf("%s.%s.view", prefix, sessionID)
}

// View is one complete dashboard snapshot: everything the presentation layer
// needs to render the map, the category panel and the header. Recomputed
// from scratch on every batch or filter change.
type View struct {
	SessionID     string                   `json:"session_id"`
	Filters       incident.Criteria        `json:"filters"`
	Incidents     []incident.Incident      `json:"incidents"`
	Count         int                      `json:"count"`
	Categories    []incident.CategoryCount `json:"categories"`
	TopCategories []incident.CategoryCount `json:"top_categories"`
	Viewport      geo.Fit                  `json:"viewport"`
	DateRange     *incident.DateRange      `json:"date_range,omitempty"`
	Loading       bool                     `json:"loading"`
	Error         string                   `json:"error,omitempty"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// Session is one dashboard tab's controller: it owns the filter criteria,
// the loaded incident batch and the derived view, and coordinates fetches so
// that the newest request always wins.
type Session struct {
	id      string
	subject string
	fetcher Fetcher
	bus     Publisher
	logger  *zap.Logger

	mu       sync.Mutex
	criteria incident.Criteria
	batch    []incident.Incident
	view     View
	cancel   context.CancelFunc
	gen      uint64
	lastSeen time.Time
}

func newSession(id, subject string, fetcher Fetcher, bus Publisher, logger *zap.Logger) *Session {
	s := &Session{
		id:       id,
		subject:  subject,
		fetcher:  fetcher,
		bus:      bus,
		logger:   logger.With(zap.String("session", id)),
		criteria: incident.DefaultCriteria(),
		lastSeen: time.Now(),
	}

	s.mu.Lock()
	s.recomputeLocked(true, "")
	s.refreshLocked()
	s.mu.Unlock()

	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Subject returns the bus subject this session publishes snapshots on
func (s *Session) Subject() string {
	return s.subject
}

// View returns the current snapshot
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	return s.view
}

// SetCriteria applies new filter criteria. Invalid criteria are rejected
// synchronously and nothing is fetched. A change to the source selection or
// the record limit triggers a new fetch, cancelling any fetch still in
// flight; a change that only narrows the loaded batch (category, date range)
// recomputes the derived view without touching the network.
func (s *Session) SetCriteria(c incident.Criteria) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	needsFetch := c.Limit != s.criteria.Limit || !sameSources(c.Sources, s.criteria.Sources)
	s.criteria = c

	if needsFetch {
		s.recomputeLocked(true, "")
		s.refreshLocked()
		return nil
	}

	s.recomputeLocked(s.view.Loading, s.view.Error)
	s.publishLocked()
	return nil
}

// Refresh re-issues the fetch for the current criteria
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	s.recomputeLocked(true, "")
	s.refreshLocked()
}

// Close cancels any in-flight fetch
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// refreshLocked starts a fetch for the current criteria. The generation
// counter makes the newest request the only one allowed to install results:
// an older fetch that slips past its cancelled context still gets dropped.
func (s *Session) refreshLocked() {
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.gen++

	go s.fetch(ctx, s.gen, s.criteria)
}

// fetch loads one batch: one timeline request per selected source, results
// concatenated in selection order
func (s *Session) fetch(ctx context.Context, gen uint64, c incident.Criteria) {
	var batch []incident.Incident
	for _, source := range c.Sources {
		records, err := s.fetcher.Timeline(ctx, upstream.TimelineQuery{
			Source:           source,
			Limit:            c.Limit,
			PrioritizeCoords: true,
		})
		if err != nil {
			if ctx.Err() != nil {
				// Superseded by a newer request; nothing to report
				return
			}
			s.logger.Warn("timeline fetch failed",
				zap.String("source", string(source)),
				zap.Error(err),
			)
			s.complete(gen, nil, fmt.Sprintf("Failed to load incidents: %v", err))
			return
		}
		batch = append(batch, incident.NormalizeAll(records, len(batch))...)
	}

	s.complete(gen, batch, "")
}

// complete installs a fetch result unless a newer request has started since
func (s *Session) complete(gen uint64, batch []incident.Incident, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}

	s.batch = batch
	s.recomputeLocked(false, errMsg)
	s.publishLocked()
}

// recomputeLocked rebuilds the derived view from the batch and criteria.
// The date range describes the loaded batch before filtering; everything
// else derives from the filtered set.
func (s *Session) recomputeLocked(loading bool, errMsg string) {
	filtered := incident.Apply(s.batch, s.criteria, geo.CityBounds)

	ranked := incident.RankCategories(filtered)

	points := make([]geo.Point, 0, len(filtered))
	for _, i := range filtered {
		points = append(points, i.Point())
	}

	view := View{
		SessionID:     s.id,
		Filters:       s.criteria,
		Incidents:     filtered,
		Count:         len(filtered),
		Categories:    ranked,
		TopCategories: incident.TopCategories(ranked, incident.TopCategoryPanelSize),
		Viewport:      geo.FitViewport(points, geo.CityBounds),
		Loading:       loading,
		Error:         errMsg,
		UpdatedAt:     time.Now(),
	}

	if r, ok := incident.BatchDateRange(s.batch); ok {
		view.DateRange = &r
	}

	s.view = view
}

// publishLocked pushes the current snapshot onto the bus for websocket
// subscribers
func (s *Session) publishLocked() {
	if s.bus == nil {
		return
	}

	data, err := json.Marshal(s.view)
	if err != nil {
		s.logger.Error("failed to marshal view snapshot", zap.Error(err))
		return
	}

	if err := s.bus.Publish(s.subject, data); err != nil {
		s.logger.Warn("failed to publish view snapshot", zap.Error(err))
	}
}

// idleFor reports how long the session has gone without being read or
// updated
func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

func sameSources(a, b []incident.SourceTable) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[incident.SourceTable]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// ErrSessionNotFound is returned for unknown or expired session ids
var ErrSessionNotFound = errors.New("session not found")
