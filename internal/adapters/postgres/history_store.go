package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Mortvola/tracker/internal/core/ports"
)

// refreshLockKey serialises writers of the incident history across processes.
const refreshLockKey = 4270612

// HistoryStore implements ports.HistoryStore over the shared pool.
type HistoryStore struct {
	db *DB
}

func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) Versions() ports.FeatureVersionRepository {
	return NewVersionRepo(s.db.Pool)
}

func (s *HistoryStore) Perimeters() ports.PerimeterRepository {
	return NewPerimeterRepo(s.db.Pool)
}

// WithinTx runs fn in a transaction holding the history write lock.
func (s *HistoryStore) WithinTx(ctx context.Context, fn func(tx ports.HistoryStore) error) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", refreshLockKey); err != nil {
		return fmt.Errorf("acquire history lock: %w", err)
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) Versions() ports.FeatureVersionRepository { return NewVersionRepo(s.tx) }
func (s *txStore) Perimeters() ports.PerimeterRepository { return NewPerimeterRepo(s.tx) }

// WithinTx reuses the enclosing transaction.
func (s *txStore) WithinTx(ctx context.Context, fn func(tx ports.HistoryStore) error) error {
	return fn(s)
}
