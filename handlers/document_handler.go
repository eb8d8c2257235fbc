package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/serline/ruleminer/job_tracker"
	"github.com/serline/ruleminer/rule_type"
	"github.com/serline/ruleminer/semantic_cache"
	"github.com/serline/ruleminer/storage"
)

type DocumentHandler struct {
	documents *storage.DocumentStore
	rules     *storage.RuleStore
	runs      *job_tracker.Store
	logger    *slog.Logger
}

func NewDocumentHandler(documents *storage.DocumentStore, rules *storage.RuleStore, runs *job_tracker.Store, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		rules:     rules,
		runs:      runs,
		logger:    logger,
	}
}

func (h *DocumentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]

	if run, exists := h.runs.Get(documentID); exists {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(run)
		return
	}

	// Fall back to the document row for runs that predate this
	// process.
	doc, err := h.documents.Get(r.Context(), documentID)
	if err != nil {
		h.logger.Error("Failed to load document",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to load document", http.StatusInternalServerError)
		return
	}
	if doc == nil {
		writeJSONError(w, "Document not found", http.StatusNotFound)
		return
	}

	percent := 0
	if doc.Status == rule_type.StatusDone {
		percent = 100
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job_tracker.Run{
		DocumentID: doc.ID,
		Status:     doc.Status,
		Percent:    percent,
	})
}

func (h *DocumentHandler) GetRules(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]

	doc, err := h.documents.Get(r.Context(), documentID)
	if err != nil {
		h.logger.Error("Failed to load document",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to load document", http.StatusInternalServerError)
		return
	}
	if doc == nil {
		writeJSONError(w, "Document not found", http.StatusNotFound)
		return
	}

	rules, err := h.rules.FindByDocument(r.Context(), documentID)
	if err != nil {
		h.logger.Error("Failed to load rules",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to load rules", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"document_id": documentID,
		"status":      doc.Status,
		"summary":     doc.Summary,
		"page_count":  doc.PageCount,
		"rules":       rules,
		"count":       len(rules),
	})
}

type CacheStatsHandler struct {
	cache *semantic_cache.Cache
}

func NewCacheStatsHandler(cache *semantic_cache.Cache) *CacheStatsHandler {
	return &CacheStatsHandler{cache: cache}
}

func (h *CacheStatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"enabled":  h.cache.Enabled(),
		"hits":     h.cache.Hits(),
		"misses":   h.cache.Misses(),
		"hit_rate": h.cache.HitRate(),
	})
}
