package parser_service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type Page struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

type ParseResult struct {
	Pages           []Page `json:"pages"`
	TotalPages      int    `json:"total_pages"`
	ParseDurationMs int    `json:"parse_duration_ms"`
}

// FullText joins page texts in page order.
func (r *ParseResult) FullText() string {
	parts := make([]string, 0, len(r.Pages))
	for _, p := range r.Pages {
		if strings.TrimSpace(p.Text) != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// RemoteClient calls the parse microservice: POST /parse with the raw
// PDF bytes, bearer-token auth, JSON pages response.
type RemoteClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	token      string
}

func NewRemoteClient(baseURL, token string, logger *slog.Logger) *RemoteClient {
	return &RemoteClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

func (c *RemoteClient) Parse(ctx context.Context, data []byte) (*ParseResult, error) {
	maxRetries := 3
	retryDelay := 2 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err := c.parseOnce(ctx, data)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// 4xx responses will not improve on retry.
		var httpErr *parseHTTPError
		if errors.As(err, &httpErr) && httpErr.status >= 400 && httpErr.status < 500 {
			return nil, err
		}

		if attempt < maxRetries {
			c.logger.Warn("Parse service attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("retry_delay", retryDelay),
				slog.String("error", err.Error()))
			time.Sleep(retryDelay)
		}
	}

	return nil, fmt.Errorf("parse service failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *RemoteClient) parseOnce(ctx context.Context, data []byte) (*ParseResult, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling parse service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &parseHTTPError{status: resp.StatusCode, body: string(body)}
	}

	var result ParseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode parse response: %w", err)
	}

	return &result, nil
}

type parseHTTPError struct {
	status int
	body   string
}

func (e *parseHTTPError) Error() string {
	return fmt.Sprintf("parse service returned status %d: %s", e.status, e.body)
}
