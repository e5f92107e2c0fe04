package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Mortvola/tracker/internal/core/domain"
)

const versionColumns = `id, global_id, irwin_id, perimeter_id, properties, start_timestamp, end_timestamp, created_at`

// VersionRepo implements ports.FeatureVersionRepository.
type VersionRepo struct {
	q Querier
}

func NewVersionRepo(q Querier) *VersionRepo {
	return &VersionRepo{q: q}
}

func (r *VersionRepo) ListOpen(ctx context.Context) ([]domain.FeatureVersion, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+versionColumns+`
		FROM feature_versions
		WHERE end_timestamp IS NULL
		ORDER BY global_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list open versions: %w", err)
	}
	return collectVersions(rows)
}

func (r *VersionRepo) GetOpen(ctx context.Context, globalID string) (*domain.FeatureVersion, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM feature_versions
		WHERE global_id = $1 AND end_timestamp IS NULL
	`, globalID)
	return scanVersion(row)
}

func (r *VersionRepo) GetLatest(ctx context.Context, globalID string) (*domain.FeatureVersion, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM feature_versions
		WHERE global_id = $1
		ORDER BY start_timestamp DESC, id DESC
		LIMIT 1
	`, globalID)
	return scanVersion(row)
}

func (r *VersionRepo) History(ctx context.Context, globalID string) ([]domain.FeatureVersion, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+versionColumns+`
		FROM feature_versions
		WHERE global_id = $1
		ORDER BY start_timestamp, id
	`, globalID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return collectVersions(rows)
}

func (r *VersionRepo) ActiveAt(ctx context.Context, at time.Time) ([]domain.FeatureVersion, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+versionColumns+`
		FROM feature_versions
		WHERE start_timestamp <= $1
		  AND (end_timestamp IS NULL OR end_timestamp > $1)
		ORDER BY global_id
	`, at)
	if err != nil {
		return nil, fmt.Errorf("query active versions: %w", err)
	}
	return collectVersions(rows)
}

func (r *VersionRepo) Insert(ctx context.Context, v *domain.FeatureVersion) error {
	props, err := json.Marshal(v.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}

	err = r.q.QueryRow(ctx, `
		INSERT INTO feature_versions (global_id, irwin_id, perimeter_id, properties, start_timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, v.GlobalID, v.IrwinID, v.PerimeterID, props, v.StartTimestamp).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert version: %w", translate(err))
	}
	return nil
}

func (r *VersionRepo) Close(ctx context.Context, id int64, end time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE feature_versions SET end_timestamp = $2
		WHERE id = $1 AND end_timestamp IS NULL
	`, id, end)
	if err != nil {
		return fmt.Errorf("close version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close version %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanVersion(row pgx.Row) (*domain.FeatureVersion, error) {
	var (
		v     domain.FeatureVersion
		props []byte
	)
	err := row.Scan(&v.ID, &v.GlobalID, &v.IrwinID, &v.PerimeterID, &props,
		&v.StartTimestamp, &v.EndTimestamp, &v.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if err := json.Unmarshal(props, &v.Properties); err != nil {
		return nil, fmt.Errorf("decode properties of version %d: %w", v.ID, err)
	}
	return &v, nil
}

func collectVersions(rows pgx.Rows) ([]domain.FeatureVersion, error) {
	defer rows.Close()

	var out []domain.FeatureVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
