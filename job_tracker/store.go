package job_tracker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/serline/ruleminer/rule_type"
)

type Run struct {
	DocumentID   string              `json:"document_id"`
	Status       rule_type.RunStatus `json:"status"`
	Percent      int                 `json:"percent"`
	ErrorMessage string              `json:"error_message,omitempty"`
	StartedAt    string              `json:"started_at"`
	CompletedAt  string              `json:"completed_at,omitempty"`
}

// Store keeps run state in memory so status endpoints can answer
// without touching the database. Completed runs are evicted after a
// retention threshold.
type Store struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	logger *slog.Logger

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		runs:   make(map[string]*Run),
		logger: logger,
	}
}

func (s *Store) Add(documentID string, run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[documentID] = run
}

func (s *Store) Get(documentID string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, exists := s.runs[documentID]
	if !exists {
		return nil, false
	}
	copied := *run
	return &copied, true
}

func (s *Store) Update(documentID string, fn func(*Run)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, exists := s.runs[documentID]; exists {
		fn(run)
	}
}

// StartCleanup starts a goroutine that periodically evicts runs that
// completed more than threshold ago.
func (s *Store) StartCleanup(threshold, cleanupInterval time.Duration) {
	s.stopCleanup = make(chan struct{})
	s.cleanupTicker = time.NewTicker(cleanupInterval)

	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				s.performCleanup(threshold)
			case <-s.stopCleanup:
				s.cleanupTicker.Stop()
				return
			}
		}
	}()
}

func (s *Store) StopCleanup() {
	if s.stopCleanup != nil {
		close(s.stopCleanup)
	}
}

func (s *Store) performCleanup(threshold time.Duration) {
	now := timeProvider.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for docID, run := range s.runs {
		if run.CompletedAt == "" {
			continue
		}
		completedAt, err := time.Parse(time.RFC3339, run.CompletedAt)
		if err == nil && now.Sub(completedAt) > threshold {
			delete(s.runs, docID)
			s.logger.Debug("Evicted expired run",
				slog.String("document_id", docID))
		}
	}
}
