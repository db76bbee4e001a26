package geocode

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sfportal/internal/adapter/storage"
	"sfportal/internal/domain/geo"
	"sfportal/internal/domain/incident"
)

// fakeGeocoder resolves addresses from a fixed table
type fakeGeocoder struct {
	points map[string]geo.Point
}

func (g *fakeGeocoder) Geocode(ctx context.Context, address string) (geo.Point, error) {
	p, ok := g.points[address]
	if !ok {
		return geo.Point{}, ErrNoResult
	}
	return p, nil
}

// fakeStore feeds candidates once and records the updates written back
type fakeStore struct {
	mu         sync.Mutex
	candidates []storage.BackfillCandidate
	served     bool
	updates    map[string]geo.Point
}

func (s *fakeStore) MissingCoordinates(ctx context.Context, limit int) ([]storage.BackfillCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.served {
		return nil, nil
	}
	s.served = true
	return s.candidates, nil
}

func (s *fakeStore) UpdateCoordinates(ctx context.Context, source incident.SourceTable, key string, lat, lon float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates == nil {
		s.updates = make(map[string]geo.Point)
	}
	s.updates[key] = geo.Point{Lat: lat, Lon: lon}
	return nil
}

func (s *fakeStore) recorded() map[string]geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]geo.Point, len(s.updates))
	for k, v := range s.updates {
		out[k] = v
	}
	return out
}

// capturingBus remembers published pass summaries
type capturingBus struct {
	mu       sync.Mutex
	subjects []string
}

func (b *capturingBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	return nil
}

func (b *capturingBus) published() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subjects)
}

func TestBackfillPassWritesOnlyCityPoints(t *testing.T) {
	geocoder := &fakeGeocoder{
		points: map[string]geo.Point{
			"800 Bryant St":  {Lat: 37.7749, Lon: -122.4194},
			"1 Broadway Ave": {Lat: 37.8044, Lon: -122.2712}, // Oakland
		},
	}
	store := &fakeStore{
		candidates: []storage.BackfillCandidate{
			{Source: incident.SourceSFPDIncidents, Key: "a", Address: "800 Bryant St"},
			{Source: incident.SourceSFPDIncidents, Key: "b", Address: "1 Broadway Ave"},
			{Source: incident.Source311Requests, Key: "c", Address: "unknown street"},
		},
	}
	bus := &capturingBus{}

	backfill := NewBackfill(geocoder, store, bus, zap.NewNop(), BackfillConfig{
		Interval:  time.Hour,
		BatchSize: 10,
	})

	backfill.runOnce(context.Background())

	updates := store.recorded()
	require.Len(t, updates, 1, "only the in-city geocode may be stored")
	assert.Equal(t, geo.Point{Lat: 37.7749, Lon: -122.4194}, updates["a"])

	assert.Equal(t, 1, bus.published())
}

func TestBackfillSkipsWhenNothingMissing(t *testing.T) {
	store := &fakeStore{served: true}
	bus := &capturingBus{}

	backfill := NewBackfill(&fakeGeocoder{}, store, bus, zap.NewNop(), BackfillConfig{})
	backfill.runOnce(context.Background())

	assert.Empty(t, store.recorded())
	assert.Zero(t, bus.published(), "empty passes stay quiet on the bus")
}

func TestBackfillStartStop(t *testing.T) {
	store := &fakeStore{
		candidates: []storage.BackfillCandidate{
			{Source: incident.SourceSFPDIncidents, Key: "a", Address: "800 Bryant St"},
		},
	}
	geocoder := &fakeGeocoder{
		points: map[string]geo.Point{"800 Bryant St": {Lat: 37.7749, Lon: -122.4194}},
	}

	backfill := NewBackfill(geocoder, store, nil, zap.NewNop(), BackfillConfig{Interval: time.Hour})
	require.NoError(t, backfill.Start(context.Background()))

	// The first pass runs immediately on start
	require.Eventually(t, func() bool {
		return len(store.recorded()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	backfill.Stop()
}
