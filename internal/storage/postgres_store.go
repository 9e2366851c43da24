package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/models"
)

// PostgresStore keeps ledger entities as JSONB documents in the entities table
type PostgresStore struct {
	db *PostgresDB
}

// NewPostgresStore creates a Postgres-backed ledger store
func NewPostgresStore(db *PostgresDB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the stored document, or nil when the entity does not exist
func (s *PostgresStore) Get(ctx context.Context, kind models.Kind, id string) ([]byte, error) {
	query := `SELECT data FROM entities WHERE kind = $1 AND id = $2`

	var data []byte
	err := s.db.Pool().QueryRow(ctx, query, string(kind), id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}
	return data, nil
}

// Apply writes all mutations in one transaction
func (s *PostgresStore) Apply(ctx context.Context, mutations []ledger.Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	batch := &pgx.Batch{}
	for _, m := range mutations {
		if m.IsDelete() {
			batch.Queue(`DELETE FROM entities WHERE kind = $1 AND id = $2`, string(m.Kind), m.ID)
			continue
		}
		batch.Queue(`
			INSERT INTO entities (kind, id, data, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (kind, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
		`, string(m.Kind), m.ID, m.Data)
	}

	results := tx.SendBatch(ctx, batch)
	for _, m := range mutations {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to write %s %s: %w", m.Kind, m.ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Count returns the number of stored entities of a kind
func (s *PostgresStore) Count(ctx context.Context, kind models.Kind) (int64, error) {
	var count int64
	err := s.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM entities WHERE kind = $1`, string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", kind, err)
	}
	return count, nil
}
