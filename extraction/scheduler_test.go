package extraction

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/serline/ruleminer/llm_service"
	"github.com/serline/ruleminer/rule_type"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]rule_type.RuleCandidate
	stores  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]rule_type.RuleCandidate)}
}

func (c *fakeCache) Lookup(ctx context.Context, batchText string) ([]rule_type.RuleCandidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.entries[batchText]
	return cached, ok
}

func (c *fakeCache) Store(batchText string, rules []rule_type.RuleCandidate, documentID string, batchIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[batchText] = rules
	c.stores++
}

type recordingTracker struct {
	mu       sync.Mutex
	percents []int
	done     []string
	errors   []string
}

func (t *recordingTracker) UpdateProgress(documentID string, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.percents = append(t.percents, percent)
}

func (t *recordingTracker) MarkDone(documentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = append(t.done, documentID)
}

func (t *recordingTracker) MarkError(documentID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = append(t.errors, message)
}

func chunksOfSize(n int) []rule_type.Chunk {
	chunks := make([]rule_type.Chunk, n)
	for i := range chunks {
		chunks[i] = rule_type.Chunk{Text: fmt.Sprintf("chunk %d body", i), Ordinal: i}
	}
	return chunks
}

func ruleJSON(text string) string {
	return fmt.Sprintf(`{"rules": [{"text": %q, "confidence": 0.9}]}`, text)
}

func TestMakeBatches(t *testing.T) {
	tests := []struct {
		name      string
		chunks    int
		batchSize int
		wantSizes []int
	}{
		{"even split", 6, 3, []int{3, 3}},
		{"trailing partial batch", 7, 3, []int{3, 3, 1}},
		{"fewer chunks than batch size", 2, 3, []int{2}},
		{"no chunks", 0, 3, nil},
		{"zero batch size uses default", 4, 0, []int{3, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := MakeBatches(chunksOfSize(tt.chunks), tt.batchSize)
			if len(batches) != len(tt.wantSizes) {
				t.Fatalf("batches = %d, want %d", len(batches), len(tt.wantSizes))
			}
			seen := 0
			for i, b := range batches {
				if b.Index != i {
					t.Errorf("batch %d has index %d", i, b.Index)
				}
				if len(b.Chunks) != tt.wantSizes[i] {
					t.Errorf("batch %d size = %d, want %d", i, len(b.Chunks), tt.wantSizes[i])
				}
				for _, c := range b.Chunks {
					if c.Ordinal != seen {
						t.Errorf("chunk order broken: got ordinal %d at position %d", c.Ordinal, seen)
					}
					seen++
				}
			}
		})
	}
}

func TestSchedulerProgressMonotonicWithinBand(t *testing.T) {
	mock := &llm_service.MockCompletionService{
		CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			return ruleJSON("Purchase orders above a thousand need sign-off"), nil
		},
	}
	tracker := &recordingTracker{}
	// Serial execution so the reported sequence is strictly increasing.
	s := NewBatchScheduler(NewExtractor(mock, RetryConfig{}, testLogger()), newFakeCache(), tracker, 1, 1, 1, testLogger())

	result := s.Run(context.Background(), "doc-1", chunksOfSize(5))

	if result.TotalBatches != 5 {
		t.Fatalf("total batches = %d, want 5", result.TotalBatches)
	}
	if len(tracker.percents) != 5 {
		t.Fatalf("progress updates = %d, want 5", len(tracker.percents))
	}
	for i := 1; i < len(tracker.percents); i++ {
		if tracker.percents[i] <= tracker.percents[i-1] {
			t.Errorf("progress not strictly increasing: %v", tracker.percents)
		}
	}
	if last := tracker.percents[len(tracker.percents)-1]; last != 70 {
		t.Errorf("final percent = %d, want 70", last)
	}
}

func TestSchedulerProgressStaysInBandUnderConcurrency(t *testing.T) {
	mock := &llm_service.MockCompletionService{
		CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			return ruleJSON("Expense reports require original receipts"), nil
		},
	}
	tracker := &recordingTracker{}
	s := NewBatchScheduler(NewExtractor(mock, RetryConfig{}, testLogger()), newFakeCache(), tracker, 1, 2, 1, testLogger())

	s.Run(context.Background(), "doc-1", chunksOfSize(7))

	if len(tracker.percents) == 0 {
		t.Fatal("expected progress updates")
	}
	for _, p := range tracker.percents {
		if p < 30 || p > 70 {
			t.Errorf("percent %d outside extraction band [30, 70]", p)
		}
	}
	max := 0
	for _, p := range tracker.percents {
		if p > max {
			max = p
		}
	}
	if max != 70 {
		t.Errorf("max percent = %d, want 70", max)
	}
}

func TestSchedulerIsolatesFailedBatches(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	mock := &llm_service.MockCompletionService{
		CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				return "", httpErr(400)
			}
			return ruleJSON(fmt.Sprintf("Rule extracted from completion number %d", n)), nil
		},
	}
	tracker := &recordingTracker{}
	s := NewBatchScheduler(NewExtractor(mock, RetryConfig{MaxAttempts: 1}, testLogger()), newFakeCache(), tracker, 1, 1, 1, testLogger())

	result := s.Run(context.Background(), "doc-1", chunksOfSize(3))

	if result.FailedBatches != 1 {
		t.Errorf("failed batches = %d, want 1", result.FailedBatches)
	}
	if len(result.Candidates) != 2 {
		t.Errorf("candidates = %d, want 2 from the surviving batches", len(result.Candidates))
	}
	if len(tracker.percents) != 3 {
		t.Errorf("progress updates = %d, want one per batch including the failed one", len(tracker.percents))
	}
}

func TestSchedulerUsesCacheHits(t *testing.T) {
	completions := 0
	mock := &llm_service.MockCompletionService{
		CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			completions++
			return ruleJSON("should not be called"), nil
		},
	}

	chunks := chunksOfSize(2)
	cache := newFakeCache()
	for _, b := range MakeBatches(chunks, 1) {
		cache.entries[b.Text()] = []rule_type.RuleCandidate{
			{Text: "Cached policy rule with sufficient length", Confidence: 0.9},
		}
	}

	tracker := &recordingTracker{}
	s := NewBatchScheduler(NewExtractor(mock, RetryConfig{}, testLogger()), cache, tracker, 1, 1, 1, testLogger())

	result := s.Run(context.Background(), "doc-1", chunks)

	if completions != 0 {
		t.Errorf("completion calls = %d, want 0 when every batch hits the cache", completions)
	}
	if result.CacheHits != 2 {
		t.Errorf("cache hits = %d, want 2", result.CacheHits)
	}
	if len(result.Candidates) != 2 {
		t.Errorf("candidates = %d, want 2", len(result.Candidates))
	}
	if cache.stores != 0 {
		t.Errorf("cache stores = %d, want 0 on hits", cache.stores)
	}
}

func TestSchedulerStoresMissesInCache(t *testing.T) {
	mock := &llm_service.MockCompletionService{
		CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			return ruleJSON("Shipping addresses must match billing country"), nil
		},
	}
	cache := newFakeCache()
	tracker := &recordingTracker{}
	s := NewBatchScheduler(NewExtractor(mock, RetryConfig{}, testLogger()), cache, tracker, 2, 1, 1, testLogger())

	s.Run(context.Background(), "doc-1", chunksOfSize(4))

	if cache.stores != 2 {
		t.Errorf("cache stores = %d, want one per missed batch", cache.stores)
	}
}

func TestSchedulerProgressNeverRegressesUnderConcurrency(t *testing.T) {
	mock := &llm_service.MockCompletionService{
		CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			return `{"rules": []}`, nil
		},
	}

	for i := 0; i < 25; i++ {
		tracker := &recordingTracker{}
		s := NewBatchScheduler(NewExtractor(mock, RetryConfig{}, testLogger()), newFakeCache(), tracker, 1, 8, 1, testLogger())

		s.Run(context.Background(), "doc-1", chunksOfSize(64))

		if len(tracker.percents) == 0 {
			t.Fatal("expected progress updates")
		}
		for j := 1; j < len(tracker.percents); j++ {
			if tracker.percents[j] < tracker.percents[j-1] {
				t.Fatalf("progress regressed at position %d: %v", j, tracker.percents[j-1:j+1])
			}
		}
		if last := tracker.percents[len(tracker.percents)-1]; last != 70 {
			t.Errorf("final percent = %d, want 70", last)
		}
	}
}

func TestSchedulerProgressEverySkipsIntermediateUpdates(t *testing.T) {
	mock := &llm_service.MockCompletionService{
		CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			return `{"rules": []}`, nil
		},
	}
	tracker := &recordingTracker{}
	s := NewBatchScheduler(NewExtractor(mock, RetryConfig{}, testLogger()), newFakeCache(), tracker, 1, 1, 2, testLogger())

	s.Run(context.Background(), "doc-1", chunksOfSize(5))

	// Updates at 2, 4 and the final 5.
	if len(tracker.percents) != 3 {
		t.Fatalf("progress updates = %d, want 3: %v", len(tracker.percents), tracker.percents)
	}
	if last := tracker.percents[len(tracker.percents)-1]; last != 70 {
		t.Errorf("final percent = %d, want 70", last)
	}
}
