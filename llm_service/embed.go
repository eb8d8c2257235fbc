package llm_service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pgvector/pgvector-go"
)

type EmbeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type EmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Object string `json:"object"`
}

type OpenAIEmbeddingService struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiURL     string
	apiKey     string
	model      string
}

func NewOpenAIEmbeddingService(apiURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *OpenAIEmbeddingService {
	return &OpenAIEmbeddingService{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		apiURL:     apiURL,
		apiKey:     apiKey,
		model:      model,
	}
}

func (s *OpenAIEmbeddingService) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	var zero pgvector.Vector

	requestBody := EmbeddingRequest{
		Input: text,
		Model: s.model,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return zero, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return zero, newHTTPError(resp)
	}

	var embeddingResp EmbeddingResponse
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&embeddingResp); err != nil {
		return zero, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(embeddingResp.Data) == 0 {
		return zero, fmt.Errorf("no embedding data received")
	}

	return pgvector.NewVector(embeddingResp.Data[0].Embedding), nil
}
