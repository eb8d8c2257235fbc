package job_tracker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/serline/ruleminer/rule_type"
)

func TestTrackerLifecycle(t *testing.T) {
	store := NewStore(testLogger())
	tracker := NewTracker(store, "", testLogger())

	tracker.Start("doc-1")
	run, exists := store.Get("doc-1")
	if !exists {
		t.Fatal("expected run after Start")
	}
	if run.Status != rule_type.StatusPending {
		t.Errorf("status = %q, want pending", run.Status)
	}
	if run.StartedAt == "" {
		t.Error("expected a start timestamp")
	}

	tracker.SetStatus("doc-1", rule_type.StatusExtracting)
	tracker.UpdateProgress("doc-1", 42)
	run, _ = store.Get("doc-1")
	if run.Percent != 42 {
		t.Errorf("percent = %d, want 42", run.Percent)
	}
	if run.Status != rule_type.StatusExtracting {
		t.Errorf("status = %q, want extracting", run.Status)
	}

	tracker.MarkDone("doc-1")
	run, _ = store.Get("doc-1")
	if run.Status != rule_type.StatusDone || run.Percent != 100 {
		t.Errorf("run = %+v, want done at 100", run)
	}
	if run.CompletedAt == "" {
		t.Error("expected a completion timestamp")
	}
}

func TestTrackerClampsPercent(t *testing.T) {
	store := NewStore(testLogger())
	tracker := NewTracker(store, "", testLogger())
	tracker.Start("doc-1")

	tracker.UpdateProgress("doc-1", -5)
	run, _ := store.Get("doc-1")
	if run.Percent != 0 {
		t.Errorf("percent = %d, want 0", run.Percent)
	}

	tracker.UpdateProgress("doc-1", 150)
	run, _ = store.Get("doc-1")
	if run.Percent != 100 {
		t.Errorf("percent = %d, want 100", run.Percent)
	}
}

func TestTrackerMarkErrorRecordsMessage(t *testing.T) {
	store := NewStore(testLogger())
	tracker := NewTracker(store, "", testLogger())
	tracker.Start("doc-1")

	tracker.MarkError("doc-1", "parsing failed: empty document")

	run, _ := store.Get("doc-1")
	if run.Status != rule_type.StatusError {
		t.Errorf("status = %q, want error", run.Status)
	}
	if run.ErrorMessage != "parsing failed: empty document" {
		t.Errorf("error message = %q", run.ErrorMessage)
	}
	if run.CompletedAt == "" {
		t.Error("errored runs must carry a completion timestamp for cleanup")
	}
}

func TestTrackerNotifiesCallbackEndpoint(t *testing.T) {
	received := make(chan Run, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var run Run
		if err := json.NewDecoder(r.Body).Decode(&run); err != nil {
			t.Errorf("callback body not json: %v", err)
		}
		received <- run
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewStore(testLogger())
	tracker := NewTracker(store, srv.URL, testLogger())
	tracker.Start("doc-1")

	tracker.MarkDone("doc-1")

	select {
	case run := <-received:
		if run.DocumentID != "doc-1" {
			t.Errorf("document id = %q, want doc-1", run.DocumentID)
		}
		if run.Status != rule_type.StatusDone || run.Percent != 100 {
			t.Errorf("run = %+v, want done at 100", run)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never arrived")
	}
}

func TestTrackerSwallowsCallbackFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := NewStore(testLogger())
	tracker := NewTracker(store, srv.URL, testLogger())
	tracker.Start("doc-1")

	// Must not panic or block; state still advances locally.
	tracker.UpdateProgress("doc-1", 30)
	tracker.MarkDone("doc-1")

	run, _ := store.Get("doc-1")
	if run.Status != rule_type.StatusDone {
		t.Errorf("status = %q, want done", run.Status)
	}
}
