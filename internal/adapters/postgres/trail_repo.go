package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Mortvola/tracker/internal/core/domain"
)

// TrailRepo implements ports.TrailRepository.
type TrailRepo struct {
	db *DB
}

func NewTrailRepo(db *DB) *TrailRepo {
	return &TrailRepo{db: db}
}

func (r *TrailRepo) Upsert(ctx context.Context, t *domain.Trail) error {
	segments, err := json.Marshal(t.Segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO trails (name, segments)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET segments = EXCLUDED.segments, updated_at = now()
		RETURNING id
	`, t.Name, segments).Scan(&t.ID)
}

func (r *TrailRepo) GetByName(ctx context.Context, name string) (*domain.Trail, error) {
	var (
		t        domain.Trail
		segments []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, segments FROM trails WHERE name = $1
	`, name).Scan(&t.ID, &t.Name, &segments)
	if err != nil {
		return nil, translate(err)
	}
	if err := json.Unmarshal(segments, &t.Segments); err != nil {
		return nil, fmt.Errorf("decode trail %q: %w", name, err)
	}
	return &t, nil
}
