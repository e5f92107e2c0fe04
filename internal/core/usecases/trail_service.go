package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Mortvola/tracker/internal/core/domain"
	"github.com/Mortvola/tracker/internal/core/ports"
	"github.com/Mortvola/tracker/internal/pkg/geospatial"
)

// TrailService handles trail loading and lookup.
type TrailService struct {
	trails ports.TrailRepository
	cache  ports.CacheService
}

// NewTrailService creates a new TrailService.
func NewTrailService(trails ports.TrailRepository, cache ports.CacheService) *TrailService {
	return &TrailService{trails: trails, cache: cache}
}

// Import validates and stores a trail, replacing any trail with the same name.
func (s *TrailService) Import(ctx context.Context, trail *domain.Trail) error {
	if trail.Name == "" {
		return fmt.Errorf("trail name must not be empty")
	}
	if len(trail.Segments) == 0 {
		return fmt.Errorf("trail %q has no segments", trail.Name)
	}
	for i, seg := range trail.Segments {
		if len(seg) == 0 {
			return fmt.Errorf("trail %q segment %d: %w", trail.Name, i, domain.ErrEmptyPolyline)
		}
		for j, p := range seg {
			if !p.Valid() {
				return fmt.Errorf("trail %q segment %d point %d: invalid coordinate %v", trail.Name, i, j, p)
			}
		}
	}

	if err := s.trails.Upsert(ctx, trail); err != nil {
		return fmt.Errorf("upsert trail: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, "trails:name:"+trail.Name)
	}
	return nil
}

// GetByName returns a trail by name.
func (s *TrailService) GetByName(ctx context.Context, name string) (*domain.Trail, error) {
	cacheKey := "trails:name:" + name
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var t domain.Trail
			if err := json.Unmarshal(data, &t); err == nil {
				return &t, nil
			}
		}
	}

	t, err := s.trails.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(t); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 3600)
		}
	}

	return t, nil
}

// Index loads a trail and builds its distance index.
func (s *TrailService) Index(ctx context.Context, name string, margin float64) (*geospatial.TrailIndex, error) {
	t, err := s.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load trail %q: %w", name, err)
	}
	return geospatial.NewTrailIndex(t, margin)
}
