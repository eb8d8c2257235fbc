package llm_service

import (
	"context"

	"github.com/pgvector/pgvector-go"
)

// CompletionService is a single non-retrying LLM call. Retry policy
// lives with the caller; errors carry the HTTP status via *HTTPError
// so callers can classify them.
type CompletionService interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
}

type EmbeddingService interface {
	Embed(ctx context.Context, text string) (pgvector.Vector, error)
}
