package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"sfportal/internal/adapter/storage"
	"sfportal/internal/domain/geo"
	"sfportal/internal/domain/incident"
)

// Geocoder resolves a street address to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Point, error)
}

// Store provides backfill candidates and accepts resolved coordinates
type Store interface {
	MissingCoordinates(ctx context.Context, limit int) ([]storage.BackfillCandidate, error)
	UpdateCoordinates(ctx context.Context, source incident.SourceTable, key string, lat, lon float64) error
}

// Publisher announces completed backfill passes on the event bus
type Publisher interface {
	Publish(subject string, data []byte) error
}

// BackfillConfig carries the worker's tunables
type BackfillConfig struct {
	Interval  time.Duration
	BatchSize int
	Subject   string
}

// Backfill periodically geocodes incidents that carry an address but no
// coordinates and writes the results back to the source tables. Results
// outside the city box are discarded rather than stored, so a bad geocode
// never places an incident on the map.
type Backfill struct {
	geocoder Geocoder
	store    Store
	bus      Publisher
	logger   *zap.Logger
	config   BackfillConfig

	mu         sync.Mutex
	running    bool
	cancelFunc context.CancelFunc
}

// NewBackfill creates a backfill worker
func NewBackfill(geocoder Geocoder, store Store, bus Publisher, logger *zap.Logger, cfg BackfillConfig) *Backfill {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Subject == "" {
		cfg.Subject = "geocode.backfill"
	}

	return &Backfill{
		geocoder: geocoder,
		store:    store,
		bus:      bus,
		logger:   logger,
		config:   cfg,
	}
}

// Start launches the backfill loop
func (b *Backfill) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}
	b.running = true

	ctx, cancel := context.WithCancel(ctx)
	b.cancelFunc = cancel

	go b.loop(ctx)
	return nil
}

// Stop halts the backfill loop
func (b *Backfill) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	b.running = false
	b.cancelFunc()
}

func (b *Backfill) loop(ctx context.Context) {
	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()

	// First pass runs immediately so a fresh deployment starts filling in
	// coordinates without waiting out the interval
	b.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.runOnce(ctx)
		}
	}
}

// passResult summarizes one backfill pass for the bus announcement
type passResult struct {
	Candidates int       `json:"candidates"`
	Resolved   int       `json:"resolved"`
	Discarded  int       `json:"discarded"`
	Failed     int       `json:"failed"`
	FinishedAt time.Time `json:"finished_at"`
}

func (b *Backfill) runOnce(ctx context.Context) {
	candidates, err := b.store.MissingCoordinates(ctx, b.config.BatchSize)
	if err != nil {
		b.logger.Error("failed to load backfill candidates", zap.Error(err))
		return
	}
	if len(candidates) == 0 {
		return
	}

	result := passResult{Candidates: len(candidates)}
	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}

		point, err := b.geocoder.Geocode(ctx, c.Address)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if !errors.Is(err, ErrNoResult) {
				b.logger.Warn("geocoding failed",
					zap.String("source", string(c.Source)),
					zap.String("key", c.Key),
					zap.Error(err),
				)
			}
			result.Failed++
			continue
		}

		if !geo.CityBounds.Contains(point.Lat, point.Lon) {
			result.Discarded++
			continue
		}

		if err := b.store.UpdateCoordinates(ctx, c.Source, c.Key, point.Lat, point.Lon); err != nil {
			b.logger.Error("failed to store coordinates",
				zap.String("source", string(c.Source)),
				zap.String("key", c.Key),
				zap.Error(err),
			)
			result.Failed++
			continue
		}
		result.Resolved++
	}

	result.FinishedAt = time.Now()
	b.logger.Info("backfill pass finished",
		zap.Int("candidates", result.Candidates),
		zap.Int("resolved", result.Resolved),
		zap.Int("discarded", result.Discarded),
		zap.Int("failed", result.Failed),
	)

	b.announce(result)
}

func (b *Backfill) announce(result passResult) {
	if b.bus == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		b.logger.Error("failed to marshal backfill result", zap.Error(err))
		return
	}
	if err := b.bus.Publish(b.config.Subject, data); err != nil {
		b.logger.Warn("failed to publish backfill result", zap.Error(err))
	}
}
