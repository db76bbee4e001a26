package explorer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sfportal/internal/adapter/upstream"
	"sfportal/internal/domain/incident"
)

// fakeFetcher serves canned records and remembers every call's context so
// tests can observe cancellation
type fakeFetcher struct {
	mu      sync.Mutex
	records map[incident.SourceTable][]incident.Record
	ctxs    []context.Context
	block   chan struct{}
}

func (f *fakeFetcher) Timeline(ctx context.Context, q upstream.TimelineQuery) ([]incident.Record, error) {
	f.mu.Lock()
	f.ctxs = append(f.ctxs, ctx)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
		}
	}

	return f.records[q.Source], nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ctxs)
}

func (f *fakeFetcher) callCtx(i int) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxs[i]
}

func sfpdRecord(incidentType, timestamp string) incident.Record {
	return incident.Record{
		SourceTable:  string(incident.SourceSFPDIncidents),
		IncidentTime: timestamp,
		IncidentType: incidentType,
		Latitude:     incident.FlexFloat(37.7749),
		Longitude:    incident.FlexFloat(-122.4194),
	}
}

func newTestManager(f *fakeFetcher) *Manager {
	return NewManager(f, nil, zap.NewNop(), ManagerConfig{})
}

func waitLoaded(t *testing.T, s *Session) View {
	t.Helper()
	require.Eventually(t, func() bool {
		return !s.View().Loading
	}, 2*time.Second, 10*time.Millisecond)
	return s.View()
}

func TestSessionLoadsInitialBatch(t *testing.T) {
	fetcher := &fakeFetcher{
		records: map[incident.SourceTable][]incident.Record{
			incident.SourceSFPDIncidents: {
				sfpdRecord("ASSAULT", "2024-03-15 08:30:00"),
				sfpdRecord("THEFT", "2024-03-16 10:00:00"),
			},
		},
	}

	session := newTestManager(fetcher).Create()
	defer session.Close()

	view := waitLoaded(t, session)
	assert.Equal(t, 2, view.Count)
	assert.Equal(t, session.ID(), view.SessionID)
	assert.Empty(t, view.Error)
	assert.False(t, view.Viewport.Default)
	require.NotNil(t, view.DateRange)
	assert.Equal(t, "ASSAULT", view.Categories[0].Label)

	// One call per selected source
	assert.Equal(t, len(incident.Sources()), fetcher.callCount())
}

func TestSetCriteriaRejectsInvalid(t *testing.T) {
	fetcher := &fakeFetcher{}
	session := newTestManager(fetcher).Create()
	defer session.Close()
	waitLoaded(t, session)

	bad := incident.DefaultCriteria()
	bad.Limit = 42
	err := session.SetCriteria(bad)
	require.Error(t, err)

	// Rejected criteria must not replace the active ones
	assert.Equal(t, incident.DefaultLimit, session.View().Filters.Limit)
}

func TestCategoryChangeRecomputesWithoutRefetch(t *testing.T) {
	fetcher := &fakeFetcher{
		records: map[incident.SourceTable][]incident.Record{
			incident.SourceSFPDIncidents: {
				sfpdRecord("ASSAULT", "2024-03-15 08:30:00"),
				sfpdRecord("THEFT", "2024-03-16 10:00:00"),
			},
		},
	}

	session := newTestManager(fetcher).Create()
	defer session.Close()
	waitLoaded(t, session)

	calls := fetcher.callCount()

	narrowed := incident.DefaultCriteria()
	narrowed.Category = "THEFT"
	require.NoError(t, session.SetCriteria(narrowed))

	view := session.View()
	assert.Equal(t, 1, view.Count)
	assert.Equal(t, "THEFT", view.Incidents[0].Type)
	assert.Equal(t, calls, fetcher.callCount(), "narrowing filters must not hit the network")
}

func TestLimitChangeCancelsInflightFetch(t *testing.T) {
	block := make(chan struct{})
	fetcher := &fakeFetcher{block: block}

	session := newTestManager(fetcher).Create()
	defer session.Close()

	// The initial fetch is parked on the block channel
	require.Eventually(t, func() bool {
		return fetcher.callCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)
	firstCtx := fetcher.callCtx(0)

	resized := incident.DefaultCriteria()
	resized.Limit = 1000
	require.NoError(t, session.SetCriteria(resized))

	require.Eventually(t, func() bool {
		return firstCtx.Err() != nil
	}, 2*time.Second, 10*time.Millisecond, "superseded fetch must be cancelled")

	close(block)
	view := waitLoaded(t, session)
	assert.Equal(t, 1000, view.Filters.Limit)
}

func TestCompleteDropsStaleGeneration(t *testing.T) {
	fetcher := &fakeFetcher{}
	session := newTestManager(fetcher).Create()
	defer session.Close()
	waitLoaded(t, session)

	session.mu.Lock()
	current := session.gen
	session.mu.Unlock()

	stale := incident.NormalizeAll([]incident.Record{
		sfpdRecord("STALE", "2024-01-01 00:00:00"),
	}, 0)
	session.complete(current-1, stale, "")

	assert.Equal(t, 0, session.View().Count, "stale batch must not install")
}

func TestManagerSessionLifecycle(t *testing.T) {
	manager := newTestManager(&fakeFetcher{})

	session := manager.Create()
	assert.Equal(t, 1, manager.Count())

	got, err := manager.Get(session.ID())
	require.NoError(t, err)
	assert.Same(t, session, got)

	require.NoError(t, manager.Delete(session.ID()))
	assert.Equal(t, 0, manager.Count())

	_, err = manager.Get(session.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, manager.Delete(session.ID()), ErrSessionNotFound)
}

func TestManagerSweepExpiresIdleSessions(t *testing.T) {
	manager := newTestManager(&fakeFetcher{})

	stale := manager.Create()
	fresh := manager.Create()
	waitLoaded(t, stale)
	waitLoaded(t, fresh)

	stale.mu.Lock()
	stale.lastSeen = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	manager.sweep(time.Now())

	assert.Equal(t, 1, manager.Count())
	_, err := manager.Get(stale.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = manager.Get(fresh.ID())
	assert.NoError(t, err)
}

func TestViewSubject(t *testing.T) {
	assert.Equal(t, "explorer.abc.view", ViewSubject("explorer", "abc"))
}
