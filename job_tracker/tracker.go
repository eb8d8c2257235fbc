package job_tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/serline/ruleminer/rule_type"
)

// Tracker records run progress in the in-memory store and, when a
// callback endpoint is configured, notifies the owning application
// with a fire-and-forget POST. Progress updates are best-effort and
// never block the extraction path.
type Tracker struct {
	store            *Store
	callbackEndpoint string
	httpClient       *http.Client
	logger           *slog.Logger
}

func NewTracker(store *Store, callbackEndpoint string, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:            store,
		callbackEndpoint: callbackEndpoint,
		httpClient:       &http.Client{Timeout: 5 * time.Second},
		logger:           logger,
	}
}

func (t *Tracker) Start(documentID string) {
	t.store.Add(documentID, &Run{
		DocumentID: documentID,
		Status:     rule_type.StatusPending,
		StartedAt:  timeProvider.Now().Format(time.RFC3339),
	})
}

func (t *Tracker) UpdateProgress(documentID string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	t.store.Update(documentID, func(run *Run) {
		run.Percent = percent
		if run.Status == rule_type.StatusPending {
			run.Status = rule_type.StatusParsing
		}
	})
	t.notify(documentID)
}

func (t *Tracker) SetStatus(documentID string, status rule_type.RunStatus) {
	t.store.Update(documentID, func(run *Run) {
		run.Status = status
	})
}

func (t *Tracker) MarkDone(documentID string) {
	t.store.Update(documentID, func(run *Run) {
		run.Status = rule_type.StatusDone
		run.Percent = 100
		run.CompletedAt = timeProvider.Now().Format(time.RFC3339)
	})
	t.notify(documentID)
}

func (t *Tracker) MarkError(documentID, message string) {
	t.store.Update(documentID, func(run *Run) {
		run.Status = rule_type.StatusError
		run.ErrorMessage = message
		run.CompletedAt = timeProvider.Now().Format(time.RFC3339)
	})
	t.notify(documentID)
}

// notify posts the current run state to the callback endpoint in a
// detached goroutine. Failures are logged and swallowed.
func (t *Tracker) notify(documentID string) {
	if t.callbackEndpoint == "" {
		return
	}
	run, exists := t.store.Get(documentID)
	if !exists {
		return
	}

	go func() {
		if err := t.post(run); err != nil {
			t.logger.Warn("Progress callback failed",
				slog.String("document_id", documentID),
				slog.String("error", err.Error()))
		}
	}()
}

func (t *Tracker) post(run *Run) error {
	jsonData, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("error marshaling run state: %w", err)
	}

	req, err := http.NewRequest("POST", t.callbackEndpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending run state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}
