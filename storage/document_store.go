package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serline/ruleminer/rule_type"
)

type DocumentStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewDocumentStore(db *pgxpool.Pool, logger *slog.Logger) *DocumentStore {
	return &DocumentStore{
		db:     db,
		logger: logger,
	}
}

func (s *DocumentStore) Insert(ctx context.Context, doc *rule_type.Document) error {
	query := `INSERT INTO documents (id, owner_id, filename, content_hash, page_count, status, origin)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.Exec(ctx, query,
		doc.ID, doc.OwnerID, doc.Filename, doc.ContentHash, doc.PageCount, doc.Status, doc.Origin)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, id string) (*rule_type.Document, error) {
	query := `SELECT id, owner_id, filename, content_hash, page_count, status, origin, summary, created_at
		FROM documents WHERE id = $1`
	var doc rule_type.Document
	err := s.db.QueryRow(ctx, query, id).Scan(
		&doc.ID, &doc.OwnerID, &doc.Filename, &doc.ContentHash,
		&doc.PageCount, &doc.Status, &doc.Origin, &doc.Summary, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &doc, nil
}

func (s *DocumentStore) SetStatus(ctx context.Context, id string, status rule_type.RunStatus) error {
	_, err := s.db.Exec(ctx, `UPDATE documents SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}

// UpdateResult records the outcome of a run: summary, page count,
// origin and terminal status in one write.
func (s *DocumentStore) UpdateResult(ctx context.Context, id, summary string, pageCount int, origin rule_type.DocumentOrigin, status rule_type.RunStatus) error {
	query := `UPDATE documents SET summary = $2, page_count = $3, origin = $4, status = $5 WHERE id = $1`
	_, err := s.db.Exec(ctx, query, id, summary, pageCount, origin, status)
	if err != nil {
		return fmt.Errorf("failed to update document result: %w", err)
	}
	return nil
}

// FindReusableDocument returns the oldest completed document with the
// same content hash and owner, excluding the current one. Only
// originally-extracted documents qualify, so reuse never chains.
func (s *DocumentStore) FindReusableDocument(ctx context.Context, contentHash, ownerID, excludeID string) (*rule_type.Document, error) {
	query := `SELECT id, owner_id, filename, content_hash, page_count, status, origin, summary, created_at
		FROM documents
		WHERE content_hash = $1 AND owner_id = $2 AND id <> $3
			AND status = 'done' AND origin = 'extracted'
		ORDER BY created_at ASC
		LIMIT 1`
	var doc rule_type.Document
	err := s.db.QueryRow(ctx, query, contentHash, ownerID, excludeID).Scan(
		&doc.ID, &doc.OwnerID, &doc.Filename, &doc.ContentHash,
		&doc.PageCount, &doc.Status, &doc.Origin, &doc.Summary, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reusable document: %w", err)
	}
	return &doc, nil
}
