package llm_service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

type OpenAIService struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiURL     string
	apiKey     string
	model      string
}

func NewOpenAIService(apiURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *OpenAIService {
	return &OpenAIService{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		apiURL:     apiURL,
		apiKey:     apiKey,
		model:      model,
	}
}

// Complete performs one chat-completion call and returns the raw
// message content. It never retries; a non-2xx response surfaces as
// *HTTPError for the caller's retry classifier.
func (s *OpenAIService) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	messages := []map[string]string{
		{"role": "system", "content": systemPrompt},
		{"role": "user", "content": userText},
	}

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":           s.model,
		"messages":        messages,
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		httpErr := newHTTPError(resp)
		s.logger.Warn("Completion API returned error",
			slog.Int("status_code", httpErr.StatusCode),
			slog.String("error_type", httpErr.ErrorType),
			slog.String("error_message", httpErr.Message),
			slog.String("model", s.model))
		return "", httpErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	choices, ok := result["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return "", fmt.Errorf("unexpected response format from completion API")
	}

	firstChoice, ok := choices[0].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected choice format in completion API response")
	}

	message, ok := firstChoice["message"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("message not found in completion API response")
	}

	content, ok := message["content"].(string)
	if !ok {
		return "", fmt.Errorf("content not found in completion API response")
	}

	return content, nil
}
