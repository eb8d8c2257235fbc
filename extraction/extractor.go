package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/serline/ruleminer/llm_service"
	"github.com/serline/ruleminer/rule_type"
)

const extractionSystemPrompt = `You are an analyst extracting business rules from policy and requirements documents. Extract every explicit or implied business rule from the provided text. Respond with a JSON object of the form {"rules": [{"text": "...", "conditions": ["..."], "domain": "...", "tags": ["..."], "confidence": 0.0, "source": {"page": 1, "section": "..."}}]}. Confidence is a number between 0 and 1. Respond with {"rules": []} when the text contains no business rules.`

var (
	// ErrMalformedResponse marks output that is not valid JSON; the
	// model may produce valid JSON on a retry.
	ErrMalformedResponse = errors.New("malformed extraction response")
	// ErrSchemaViolation marks valid JSON without the expected rules
	// array; retrying will not fix a schema mismatch.
	ErrSchemaViolation = errors.New("extraction response missing rules array")
)

type RetryConfig struct {
	Base           time.Duration
	MaxRateLimit   time.Duration
	MaxServerError time.Duration
	MaxAttempts    int
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Base <= 0 {
		c.Base = 500 * time.Millisecond
	}
	if c.MaxRateLimit <= 0 {
		c.MaxRateLimit = 20 * time.Second
	}
	if c.MaxServerError <= 0 {
		c.MaxServerError = 8 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	return c
}

// Extractor invokes the completion provider for one batch, applying
// the per-error-class retry policy. It fails closed: after retries are
// exhausted the batch contributes no candidates, and no error
// propagates to the scheduler.
type Extractor struct {
	llm    llm_service.CompletionService
	retry  RetryConfig
	logger *slog.Logger
	sleep  func(time.Duration)
}

func NewExtractor(llm llm_service.CompletionService, retry RetryConfig, logger *slog.Logger) *Extractor {
	return &Extractor{
		llm:    llm,
		retry:  retry.withDefaults(),
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Extract returns the rule candidates for batchText. The second result
// is false when extraction failed outright, so callers can distinguish
// a failed batch from a batch that legitimately contained no rules.
func (e *Extractor) Extract(ctx context.Context, batchText string) ([]rule_type.RuleCandidate, bool) {
	maxAttempts := e.retry.MaxAttempts

	for attempt := 0; attempt < maxAttempts; attempt++ {
		raw, err := e.llm.Complete(ctx, extractionSystemPrompt, batchText)
		if err == nil {
			candidates, perr := ParseCandidates(raw)
			if perr == nil {
				return candidates, true
			}
			if errors.Is(perr, ErrSchemaViolation) {
				e.logger.Warn("Extraction response violates schema, not retrying",
					slog.String("error", perr.Error()))
				return nil, false
			}
			e.logger.Warn("Extraction response unparseable",
				slog.Int("attempt", attempt),
				slog.String("error", perr.Error()))
			if attempt < maxAttempts-1 {
				e.sleep(e.retry.Base)
			}
			continue
		}

		status, hasStatus := llm_service.StatusCode(err)
		switch {
		case hasStatus && status == 429:
			wait := backoff(e.retry.Base, attempt, e.retry.MaxRateLimit)
			e.logger.Warn("Completion rate limited",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait))
			if attempt < maxAttempts-1 {
				e.sleep(wait)
			}
		case hasStatus && status >= 500:
			wait := backoff(e.retry.Base, attempt, e.retry.MaxServerError)
			e.logger.Warn("Completion server error",
				slog.Int("attempt", attempt),
				slog.Int("status_code", status),
				slog.Duration("wait", wait))
			if attempt < maxAttempts-1 {
				e.sleep(wait)
			}
		case hasStatus:
			// Remaining 4xx responses are caller mistakes; retrying
			// cannot help.
			e.logger.Warn("Non-retryable completion error",
				slog.Int("status_code", status),
				slog.String("error", err.Error()))
			return nil, false
		default:
			// Transport failure or timeout, same backoff as 5xx.
			wait := backoff(e.retry.Base, attempt, e.retry.MaxServerError)
			e.logger.Warn("Completion transport error",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()))
			if attempt < maxAttempts-1 {
				e.sleep(wait)
			}
		}
	}

	e.logger.Error("Extraction failed after exhausting retries",
		slog.Int("attempts", maxAttempts))
	return nil, false
}

func backoff(base time.Duration, attempt int, max time.Duration) time.Duration {
	wait := base << uint(attempt)
	if wait <= 0 || wait > max {
		return max
	}
	return wait
}

// ParseCandidates decodes the model output into rule candidates,
// distinguishing unparseable JSON (retryable) from a valid JSON body
// without the rules array (not retryable).
func ParseCandidates(raw string) ([]rule_type.RuleCandidate, error) {
	cleaned := stripCodeFence(raw)

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	rulesRaw, ok := envelope["rules"]
	if !ok {
		return nil, ErrSchemaViolation
	}

	candidates := make([]rule_type.RuleCandidate, 0)
	if err := json.Unmarshal(rulesRaw, &candidates); err != nil {
		return nil, fmt.Errorf("%w: rules is not an array of rule objects: %v", ErrSchemaViolation, err)
	}

	return candidates, nil
}

// stripCodeFence removes a markdown fence the model sometimes wraps
// around its JSON output.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
