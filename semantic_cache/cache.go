package semantic_cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/pgvector/pgvector-go"

	"github.com/serline/ruleminer/llm_service"
	"github.com/serline/ruleminer/rule_type"
)

type Match struct {
	ID       string
	Score    float64
	Metadata []byte
}

type VectorIndex interface {
	Query(ctx context.Context, embedding pgvector.Vector, topK int) ([]Match, error)
	Upsert(ctx context.Context, id string, embedding pgvector.Vector, metadata []byte) error
}

// EntryMetadata is the payload stored alongside each cache vector.
type EntryMetadata struct {
	Rules      []rule_type.RuleCandidate `json:"rules"`
	DocumentID string                    `json:"doc_id"`
	BatchIndex int                       `json:"chunk_index"`
	ModelID    string                    `json:"model_id"`
	CreatedAt  string                    `json:"created_at"`
}

// Cache short-circuits extraction when a near-duplicate batch was seen
// before. It is purely a cost optimization: every failure (embedding,
// query, decode) degrades to a miss and the batch proceeds to
// extraction. Entries are keyed by model id, so a model change
// invalidates prior entries without a TTL sweep.
type Cache struct {
	enabled   bool
	threshold float64
	maxChars  int
	modelID   string

	embedder llm_service.EmbeddingService
	index    VectorIndex
	logger   *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

func New(embedder llm_service.EmbeddingService, index VectorIndex, enabled bool, threshold float64, maxChars int, modelID string, logger *slog.Logger) *Cache {
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &Cache{
		enabled:   enabled,
		threshold: threshold,
		maxChars:  maxChars,
		modelID:   modelID,
		embedder:  embedder,
		index:     index,
		logger:    logger,
	}
}

func (c *Cache) Enabled() bool {
	return c.enabled
}

// Lookup returns previously extracted rules for a near-duplicate of
// batchText, or a miss. Never returns an error: fail-open.
func (c *Cache) Lookup(ctx context.Context, batchText string) ([]rule_type.RuleCandidate, bool) {
	if !c.enabled {
		return nil, false
	}

	embedding, err := c.embedder.Embed(ctx, c.truncate(batchText))
	if err != nil {
		c.logger.Warn("Cache embedding failed, treating as miss",
			slog.String("error", err.Error()))
		c.misses.Add(1)
		return nil, false
	}

	matches, err := c.index.Query(ctx, embedding, 1)
	if err != nil {
		c.logger.Warn("Cache vector query failed, treating as miss",
			slog.String("error", err.Error()))
		c.misses.Add(1)
		return nil, false
	}

	if len(matches) == 0 || matches[0].Score < c.threshold {
		c.misses.Add(1)
		return nil, false
	}

	var meta EntryMetadata
	if err := json.Unmarshal(matches[0].Metadata, &meta); err != nil {
		c.logger.Warn("Cache entry metadata unreadable, treating as miss",
			slog.String("id", matches[0].ID),
			slog.String("error", err.Error()))
		c.misses.Add(1)
		return nil, false
	}

	if meta.ModelID != c.modelID {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	c.logger.Info("Semantic cache hit",
		slog.String("id", matches[0].ID),
		slog.Float64("score", matches[0].Score),
		slog.Int("rule_count", len(meta.Rules)))
	return meta.Rules, true
}

// Store upserts the batch's rules in a detached goroutine. Errors are
// logged and swallowed; callers never wait on the write.
func (c *Cache) Store(batchText string, rules []rule_type.RuleCandidate, documentID string, batchIndex int) {
	if !c.enabled {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		text := c.truncate(batchText)
		embedding, err := c.embedder.Embed(ctx, text)
		if err != nil {
			c.logger.Warn("Cache store embedding failed",
				slog.String("error", err.Error()))
			return
		}

		meta := EntryMetadata{
			Rules:      rules,
			DocumentID: documentID,
			BatchIndex: batchIndex,
			ModelID:    c.modelID,
			CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		}
		metadata, err := json.Marshal(meta)
		if err != nil {
			c.logger.Warn("Cache store metadata marshal failed",
				slog.String("error", err.Error()))
			return
		}

		if err := c.index.Upsert(ctx, EntryID(text), embedding, metadata); err != nil {
			c.logger.Warn("Cache store upsert failed",
				slog.String("error", err.Error()))
		}
	}()
}

func (c *Cache) Hits() int64 {
	return c.hits.Load()
}

func (c *Cache) Misses() int64 {
	return c.misses.Load()
}

func (c *Cache) HitRate() float64 {
	total := c.hits.Load() + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(c.hits.Load()) / float64(total)
}

func (c *Cache) truncate(text string) string {
	if len(text) <= c.maxChars {
		return text
	}
	// Back the cut up to a rune boundary so the embedding input stays
	// valid UTF-8.
	cut := c.maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// EntryID is a deterministic id for a batch text, so repeated stores
// of the same text upsert the same row.
func EntryID(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
