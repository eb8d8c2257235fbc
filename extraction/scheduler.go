package extraction

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/serline/ruleminer/rule_type"
)

// Cache is the semantic cache as the scheduler sees it: lookups never
// fail (fail-open to a miss) and stores are fire-and-forget.
type Cache interface {
	Lookup(ctx context.Context, batchText string) ([]rule_type.RuleCandidate, bool)
	Store(batchText string, rules []rule_type.RuleCandidate, documentID string, batchIndex int)
}

// Tracker receives best-effort progress updates. Implementations must
// not block the extraction path.
type Tracker interface {
	UpdateProgress(documentID string, percent int)
	MarkDone(documentID string)
	MarkError(documentID, message string)
}

// Extraction occupies the 30-70 band of the overall run; parsing owns
// 0-30 and persistence/summary own 70-100.
const (
	progressBandStart = 30
	progressBandWidth = 40
)

type ScheduleResult struct {
	Candidates    []rule_type.RuleCandidate
	TotalBatches  int
	FailedBatches int
	CacheHits     int
}

// progressReporter serializes reports for one run so a goroutine that
// incremented the completion counter first can never deliver its stale
// lower percent after a sibling delivered a higher one.
type progressReporter struct {
	mu   sync.Mutex
	last int
}

// BatchScheduler partitions chunks into batches and processes them in
// groups of maxConcurrent: every batch in a group runs concurrently,
// the group is awaited, then the next group starts. A failed batch
// contributes nothing and never aborts its siblings.
type BatchScheduler struct {
	batchSize     int
	maxConcurrent int
	progressEvery int

	extractor *Extractor
	cache     Cache
	tracker   Tracker
	logger    *slog.Logger
}

func NewBatchScheduler(extractor *Extractor, cache Cache, tracker Tracker, batchSize, maxConcurrent, progressEvery int, logger *slog.Logger) *BatchScheduler {
	if batchSize <= 0 {
		batchSize = 3
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	if progressEvery <= 0 {
		progressEvery = 1
	}
	return &BatchScheduler{
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
		progressEvery: progressEvery,
		extractor:     extractor,
		cache:         cache,
		tracker:       tracker,
		logger:        logger,
	}
}

// MakeBatches partitions chunks into batches of batchSize, preserving
// the original chunk order.
func MakeBatches(chunks []rule_type.Chunk, batchSize int) []rule_type.Batch {
	if batchSize <= 0 {
		batchSize = 3
	}
	var batches []rule_type.Batch
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, rule_type.Batch{
			Index:  len(batches),
			Chunks: chunks[start:end],
		})
	}
	return batches
}

func (s *BatchScheduler) Run(ctx context.Context, documentID string, chunks []rule_type.Chunk) ScheduleResult {
	batches := MakeBatches(chunks, s.batchSize)
	total := len(batches)

	var completed atomic.Int64
	var failed atomic.Int64
	var cacheHits atomic.Int64

	var mu sync.Mutex
	candidates := make([]rule_type.RuleCandidate, 0)
	reporter := &progressReporter{}

	for start := 0; start < total; start += s.maxConcurrent {
		end := start + s.maxConcurrent
		if end > total {
			end = total
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, batch := range batches[start:end] {
			batch := batch
			g.Go(func() error {
				batchCandidates, fromCache, ok := s.processBatch(gctx, documentID, batch)
				if !ok {
					failed.Add(1)
				}
				if fromCache {
					cacheHits.Add(1)
				}
				if len(batchCandidates) > 0 {
					mu.Lock()
					candidates = append(candidates, batchCandidates...)
					mu.Unlock()
				}
				s.reportProgress(documentID, int(completed.Add(1)), total, reporter)
				return nil
			})
		}
		// Batch failures are contained inside processBatch; Wait only
		// synchronizes the group.
		_ = g.Wait()
	}

	return ScheduleResult{
		Candidates:    candidates,
		TotalBatches:  total,
		FailedBatches: int(failed.Load()),
		CacheHits:     int(cacheHits.Load()),
	}
}

func (s *BatchScheduler) processBatch(ctx context.Context, documentID string, batch rule_type.Batch) (candidates []rule_type.RuleCandidate, fromCache, ok bool) {
	text := batch.Text()

	if cached, hit := s.cache.Lookup(ctx, text); hit {
		return cached, true, true
	}

	extracted, ok := s.extractor.Extract(ctx, text)
	if !ok {
		s.logger.Warn("Batch extraction failed, continuing without it",
			slog.String("document_id", documentID),
			slog.Int("batch_index", batch.Index))
		return nil, false, false
	}

	s.cache.Store(text, extracted, documentID, batch.Index)
	return extracted, false, true
}

func (s *BatchScheduler) reportProgress(documentID string, completed, total int, reporter *progressReporter) {
	if total == 0 {
		return
	}
	if completed%s.progressEvery != 0 && completed != total {
		return
	}
	percent := progressBandStart + completed*progressBandWidth/total
	if percent > progressBandStart+progressBandWidth {
		percent = progressBandStart + progressBandWidth
	}

	// The lock covers the tracker call as well: releasing it before
	// reporting would reopen the reordering window.
	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	if percent <= reporter.last {
		return
	}
	reporter.last = percent
	s.tracker.UpdateProgress(documentID, percent)
}
