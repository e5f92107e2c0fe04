package ports

import (
	"context"
	"time"

	"github.com/Mortvola/tracker/internal/core/domain"
)

// TrailRepository persists reference trails.
type TrailRepository interface {
	Upsert(ctx context.Context, trail *domain.Trail) error
	GetByName(ctx context.Context, name string) (*domain.Trail, error)
}

// FeatureVersionRepository persists the append-only incident history.
type FeatureVersionRepository interface {
	// ListOpen returns every version whose end timestamp is null.
	ListOpen(ctx context.Context) ([]domain.FeatureVersion, error)
	GetOpen(ctx context.Context, globalID string) (*domain.FeatureVersion, error)
	// GetLatest returns the version with the greatest start timestamp.
	GetLatest(ctx context.Context, globalID string) (*domain.FeatureVersion, error)
	History(ctx context.Context, globalID string) ([]domain.FeatureVersion, error)
	// ActiveAt returns the versions whose interval contains at.
	ActiveAt(ctx context.Context, at time.Time) ([]domain.FeatureVersion, error)
	Insert(ctx context.Context, v *domain.FeatureVersion) error
	Close(ctx context.Context, id int64, end time.Time) error
}

// PerimeterRepository persists perimeter polygons.
type PerimeterRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Perimeter, error)
	Insert(ctx context.Context, p *domain.Perimeter) error
}

// HistoryStore groups the version and perimeter repositories behind a
// single transaction boundary.
type HistoryStore interface {
	Versions() FeatureVersionRepository
	Perimeters() PerimeterRepository
	// WithinTx runs fn against a transactional view of the store. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx HistoryStore) error) error
}
