package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serline/ruleminer/rule_type"
)

type RuleStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewRuleStore(db *pgxpool.Pool, logger *slog.Logger) *RuleStore {
	return &RuleStore{
		db:     db,
		logger: logger,
	}
}

func (s *RuleStore) InsertRules(ctx context.Context, documentID string, rules []rule_type.Rule) error {
	if len(rules) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO rules (id, document_id, text, conditions, domain, tags, confidence, source_page, source_section)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for _, rule := range rules {
		conditions, err := json.Marshal(nonNil(rule.Conditions))
		if err != nil {
			return fmt.Errorf("failed to marshal rule conditions: %w", err)
		}
		tags, err := json.Marshal(nonNil(rule.Tags))
		if err != nil {
			return fmt.Errorf("failed to marshal rule tags: %w", err)
		}
		batch.Queue(query,
			uuid.NewString(), documentID, rule.Text, conditions, rule.Domain,
			tags, rule.Confidence, rule.Source.Page, rule.Source.Section)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()
	for range rules {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert rules: %w", err)
		}
	}

	s.logger.Info("Stored extracted rules",
		slog.String("document_id", documentID),
		slog.Int("rule_count", len(rules)))
	return nil
}

func (s *RuleStore) FindByDocument(ctx context.Context, documentID string) ([]rule_type.Rule, error) {
	query := `SELECT text, conditions, domain, tags, confidence, source_page, source_section
		FROM rules WHERE document_id = $1 ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	rules := make([]rule_type.Rule, 0)
	for rows.Next() {
		var rule rule_type.Rule
		var conditions, tags []byte
		err := rows.Scan(&rule.Text, &conditions, &rule.Domain, &tags,
			&rule.Confidence, &rule.Source.Page, &rule.Source.Section)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("failed to parse rule conditions: %w", err)
		}
		if err := json.Unmarshal(tags, &rule.Tags); err != nil {
			return nil, fmt.Errorf("failed to parse rule tags: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// CopyRules duplicates every rule of fromDocumentID onto
// toDocumentID. Used by the exact-reuse path.
func (s *RuleStore) CopyRules(ctx context.Context, fromDocumentID, toDocumentID string) (int, error) {
	query := `INSERT INTO rules (id, document_id, text, conditions, domain, tags, confidence, source_page, source_section)
		SELECT gen_random_uuid()::text, $2, text, conditions, domain, tags, confidence, source_page, source_section
		FROM rules WHERE document_id = $1`

	tag, err := s.db.Exec(ctx, query, fromDocumentID, toDocumentID)
	if err != nil {
		return 0, fmt.Errorf("failed to copy rules: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
