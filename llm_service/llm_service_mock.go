package llm_service

import (
	"context"

	"github.com/pgvector/pgvector-go"
)

type MockCompletionService struct {
	CompleteFunc func(ctx context.Context, systemPrompt, userText string) (string, error)
}

func (m *MockCompletionService) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, systemPrompt, userText)
	}
	return `{"rules": []}`, nil
}

type MockEmbeddingService struct {
	EmbedFunc func(ctx context.Context, text string) (pgvector.Vector, error)
}

func (m *MockEmbeddingService) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return pgvector.NewVector([]float32{0, 0, 0}), nil
}
