package stats

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"sfportal/internal/adapter/storage"
)

// Store is the analytics storage the service caches in front of
type Store interface {
	TopNeighborhoods(ctx context.Context, limit int, minIncidents *int) ([]storage.NeighborhoodCount, error)
	DangerAnalysis(ctx context.Context, filter storage.DangerFilter) ([]storage.DangerRow, error)
	TypeBreakdown(ctx context.Context) (int, int, error)
	MonthlyIncidents(ctx context.Context) ([]storage.MonthlyCount, error)
	TopCrimeCategories(ctx context.Context, limit int) ([]storage.CategoryTotal, error)
	PrimarySituationActions(ctx context.Context) ([]storage.SituationAction, error)
	IncompleteInspections(ctx context.Context, limit int) ([]storage.Inspection, error)
	TopFireNeighborhoods(ctx context.Context, limit, years int) ([]storage.FireNeighborhoodRank, error)
	ResponseTimes(ctx context.Context, limit int, sortBy, order string) ([]storage.ResponseTimeRow, error)
}

// Service caches the analytics queries. The underlying tables change rarely
// and every query is a full scan, so results are held for a TTL and expired
// entries are swept in the background.
type Service struct {
	store Store
	cache *gocache.Cache
}

// NewService creates a cached stats service
func NewService(store Store, ttl, sweepInterval time.Duration) *Service {
	return &Service{
		store: store,
		cache: gocache.New(ttl, sweepInterval),
	}
}

// TopNeighborhoods returns the neighborhood ranking
func (s *Service) TopNeighborhoods(ctx context.Context, limit int, minIncidents *int) ([]storage.NeighborhoodCount, error) {
	key := fmt.Sprintf("neighborhoods:%d:%v", limit, derefOr(minIncidents, -1))
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]storage.NeighborhoodCount), nil
	}

	result, err := s.store.TopNeighborhoods(ctx, limit, minIncidents)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, result)
	return result, nil
}

// DangerAnalysis returns the time-of-day danger buckets
func (s *Service) DangerAnalysis(ctx context.Context, filter storage.DangerFilter) ([]storage.DangerRow, error) {
	key := fmt.Sprintf("danger:%s:%s:%s:%d", filter.Neighborhood, filter.TimePeriod, filter.DayType, filter.TopN)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]storage.DangerRow), nil
	}

	result, err := s.store.DangerAnalysis(ctx, filter)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, result)
	return result, nil
}

// breakdown bundles the two counts for caching as one entry
type breakdown struct {
	Crime int
	Fire  int
}

// TypeBreakdown returns crime and fire totals
func (s *Service) TypeBreakdown(ctx context.Context) (int, int, error) {
	const key = "breakdown"
	if cached, ok := s.cache.Get(key); ok {
		b := cached.(breakdown)
		return b.Crime, b.Fire, nil
	}

	crime, fire, err := s.store.TypeBreakdown(ctx)
	if err != nil {
		return 0, 0, err
	}
	s.cache.SetDefault(key, breakdown{Crime: crime, Fire: fire})
	return crime, fire, nil
}

// MonthlyIncidents returns per-month crime and fire counts
func (s *Service) MonthlyIncidents(ctx context.Context) ([]storage.MonthlyCount, error) {
	const key = "monthly"
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]storage.MonthlyCount), nil
	}

	result, err := s.store.MonthlyIncidents(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, result)
	return result, nil
}

// TopCrimeCategories returns the most reported crime categories
func (s *Service) TopCrimeCategories(ctx context.Context, limit int) ([]storage.CategoryTotal, error) {
	key := fmt.Sprintf("crime-categories:%d", limit)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]storage.CategoryTotal), nil
	}

	result, err := s.store.TopCrimeCategories(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, result)
	return result, nil
}

// PrimarySituationActions returns the fire situation/action pairs
func (s *Service) PrimarySituationActions(ctx context.Context) ([]storage.SituationAction, error) {
	const key = "situations"
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]storage.SituationAction), nil
	}

	result, err := s.store.PrimarySituationActions(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, result)
	return result, nil
}

// IncompleteInspections returns open fire inspections
func (s *Service) IncompleteInspections(ctx context.Context, limit int) ([]storage.Inspection, error) {
	key := fmt.Sprintf("inspections:%d", limit)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]storage.Inspection), nil
	}

	result, err := s.store.IncompleteInspections(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, result)
	return result, nil
}

// TopFireNeighborhoods returns the yearly fire neighborhood rankings
func (s *Service) TopFireNeighborhoods(ctx context.Context, limit, years int) ([]storage.FireNeighborhoodRank, error) {
	key := fmt.Sprintf("fire-neighborhoods:%d:%d", limit, years)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]storage.FireNeighborhoodRank), nil
	}

	result, err := s.store.TopFireNeighborhoods(ctx, limit, years)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, result)
	return result, nil
}

// ResponseTimes returns the SFFD response time stats
func (s *Service) ResponseTimes(ctx context.Context, limit int, sortBy, order string) ([]storage.ResponseTimeRow, error) {
	key := fmt.Sprintf("response-times:%d:%s:%s", limit, sortBy, order)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]storage.ResponseTimeRow), nil
	}

	result, err := s.store.ResponseTimes(ctx, limit, sortBy, order)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, result)
	return result, nil
}

func derefOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
