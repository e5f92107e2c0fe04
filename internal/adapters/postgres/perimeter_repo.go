package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Mortvola/tracker/internal/core/domain"
)

// PerimeterRepo implements ports.PerimeterRepository. Rows are immutable
// once written.
type PerimeterRepo struct {
	q Querier
}

func NewPerimeterRepo(q Querier) *PerimeterRepo {
	return &PerimeterRepo{q: q}
}

func (r *PerimeterRepo) GetByID(ctx context.Context, id int64) (*domain.Perimeter, error) {
	var (
		p    domain.Perimeter
		geom []byte
	)
	err := r.q.QueryRow(ctx, `
		SELECT id, geometry, created_at FROM perimeters WHERE id = $1
	`, id).Scan(&p.ID, &geom, &p.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if err := json.Unmarshal(geom, &p.Geometry); err != nil {
		return nil, fmt.Errorf("decode perimeter %d: %w", id, err)
	}
	return &p, nil
}

func (r *PerimeterRepo) Insert(ctx context.Context, p *domain.Perimeter) error {
	geom, err := json.Marshal(p.Geometry)
	if err != nil {
		return fmt.Errorf("marshal perimeter: %w", err)
	}
	err = r.q.QueryRow(ctx, `
		INSERT INTO perimeters (geometry) VALUES ($1)
		RETURNING id, created_at
	`, geom).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert perimeter: %w", err)
	}
	return nil
}
