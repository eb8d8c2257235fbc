package semantic_cache

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorIndex implements VectorIndex over the rule_cache table,
// using cosine similarity.
type PgVectorIndex struct {
	db *pgxpool.Pool
}

func NewPgVectorIndex(db *pgxpool.Pool) *PgVectorIndex {
	return &PgVectorIndex{db: db}
}

func (idx *PgVectorIndex) Query(ctx context.Context, embedding pgvector.Vector, topK int) ([]Match, error) {
	query := `SELECT id, 1 - (embedding <=> $1) AS score, metadata
		FROM rule_cache
		ORDER BY embedding <=> $1
		LIMIT $2`

	rows, err := idx.db.Query(ctx, query, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule cache: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Score, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan cache match: %w", err)
		}
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

func (idx *PgVectorIndex) Upsert(ctx context.Context, id string, embedding pgvector.Vector, metadata []byte) error {
	query := `INSERT INTO rule_cache (id, embedding, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, created_at = now()`

	if _, err := idx.db.Exec(ctx, query, id, embedding, metadata); err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}
