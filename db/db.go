package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(dbURL string) (*pgxpool.Pool, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	pool, err := connectWithRetry(dbURL, 10, time.Second*10)
	if err != nil {
		return nil, err
	}

	// Enable pgvector extension
	_, err = pool.Exec(context.Background(), "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return nil, fmt.Errorf("unable to create vector extension: %v", err)
	}

	if err := bootstrapSchema(context.Background(), pool); err != nil {
		return nil, err
	}

	return pool, nil
}

func connectWithRetry(dbURL string, maxRetries int, retryDelay time.Duration) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DATABASE_URL: %v", err)
	}

	var pool *pgxpool.Pool
	for i := 0; i < maxRetries; i++ {
		pool, err = pgxpool.NewWithConfig(context.Background(), config)
		if err == nil {
			err = pool.Ping(context.Background())
			if err == nil {
				log.Println("Successfully connected to the database")
				return pool, nil
			}
			pool.Close()
		}

		log.Printf("Failed to connect to the database (attempt %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	return nil, fmt.Errorf("failed to connect to the database after %d attempts: %v", maxRetries, err)
}

func bootstrapSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL,
			filename      TEXT NOT NULL,
			content_hash  TEXT NOT NULL,
			page_count    INTEGER NOT NULL DEFAULT 0,
			status        TEXT NOT NULL,
			origin        TEXT NOT NULL DEFAULT 'extracted',
			summary       TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_hash_owner
			ON documents (content_hash, owner_id, status)`,
		`CREATE TABLE IF NOT EXISTS rules (
			id             TEXT PRIMARY KEY,
			document_id    TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			text           TEXT NOT NULL,
			conditions     JSONB NOT NULL DEFAULT '[]',
			domain         TEXT NOT NULL DEFAULT '',
			tags           JSONB NOT NULL DEFAULT '[]',
			confidence     DOUBLE PRECISION NOT NULL,
			source_page    INTEGER NOT NULL DEFAULT 0,
			source_section TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_document ON rules (document_id)`,
		`CREATE TABLE IF NOT EXISTS rule_cache (
			id         TEXT PRIMARY KEY,
			embedding  vector(1536),
			metadata   JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to bootstrap schema: %w", err)
		}
	}
	return nil
}
