package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Mortvola/tracker/internal/core/domain"
	"github.com/Mortvola/tracker/internal/core/ports"
)

// HistoryService answers read queries over the incident history.
type HistoryService struct {
	store ports.HistoryStore
	cache ports.CacheService
	loc   *time.Location
}

// NewHistoryService creates a new HistoryService. Days passed to ActiveOn are
// interpreted in loc.
func NewHistoryService(store ports.HistoryStore, cache ports.CacheService, loc *time.Location) *HistoryService {
	if loc == nil {
		loc = time.UTC
	}
	return &HistoryService{store: store, cache: cache, loc: loc}
}

// ListOpen returns the currently open version of every tracked incident.
func (s *HistoryService) ListOpen(ctx context.Context) ([]domain.FeatureVersion, error) {
	return s.store.Versions().ListOpen(ctx)
}

// Current returns the open version of an incident, or its most recent one
// when it has ended.
func (s *HistoryService) Current(ctx context.Context, globalID string) (*domain.FeatureVersion, error) {
	if globalID == "" {
		return nil, fmt.Errorf("global id must not be empty")
	}

	cacheKey := currentKey(globalID)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var v domain.FeatureVersion
			if err := json.Unmarshal(data, &v); err == nil {
				return &v, nil
			}
		}
	}

	v, err := s.store.Versions().GetOpen(ctx, globalID)
	if err != nil {
		if !IsNotFound(err) {
			return nil, err
		}
		if v, err = s.store.Versions().GetLatest(ctx, globalID); err != nil {
			return nil, err
		}
	}

	if s.cache != nil {
		if data, err := json.Marshal(v); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}
	return v, nil
}

// Invalidate drops cached reads for an incident after it changed.
func (s *HistoryService) Invalidate(ctx context.Context, globalID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, currentKey(globalID))
}

func currentKey(globalID string) string {
	return "incidents:current:" + globalID
}

// History returns every version of an incident, oldest first.
func (s *HistoryService) History(ctx context.Context, globalID string) ([]domain.FeatureVersion, error) {
	if globalID == "" {
		return nil, fmt.Errorf("global id must not be empty")
	}
	return s.store.Versions().History(ctx, globalID)
}

// ActiveOn returns the versions that were active at the end of the given
// day ("2006-01-02").
func (s *HistoryService) ActiveOn(ctx context.Context, date string) ([]domain.FeatureVersion, error) {
	start, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	at := start.AddDate(0, 0, 1).Add(-time.Microsecond)
	return s.store.Versions().ActiveAt(ctx, at)
}

// Perimeter returns a stored perimeter. Perimeters never change, so they are
// cached for a day.
func (s *HistoryService) Perimeter(ctx context.Context, id int64) (*domain.Perimeter, error) {
	cacheKey := "perimeters:id:" + strconv.FormatInt(id, 10)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var p domain.Perimeter
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
		}
	}

	p, err := s.store.Perimeters().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 86400)
		}
	}

	return p, nil
}
