package ports

import (
	"context"

	"github.com/Mortvola/tracker/internal/core/domain"
)

// FeatureSource fetches incidents from the upstream feed.
type FeatureSource interface {
	// FetchFeatures returns the validated current incidents.
	FetchFeatures(ctx context.Context) ([]domain.Feature, error)
	// FetchPerimeter returns nil without error when the incident has no perimeter.
	FetchPerimeter(ctx context.Context, irwinID string) (*domain.PerimeterGeometry, error)
	// LookupHistory returns nil without error when the incident is unknown.
	LookupHistory(ctx context.Context, globalID string) (*domain.HistoryRecord, error)
}

// EventPublisher publishes incident change events to a message broker.
type EventPublisher interface {
	PublishChange(ctx context.Context, event *domain.ChangeEvent) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
