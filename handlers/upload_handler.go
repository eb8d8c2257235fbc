package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/serline/ruleminer/extraction"
	"github.com/serline/ruleminer/job_tracker"
	"github.com/serline/ruleminer/rule_type"
	"github.com/serline/ruleminer/storage"
)

type UploadHandler struct {
	documents *storage.DocumentStore
	pipeline  *extraction.Pipeline
	tracker   *job_tracker.Tracker
	logger    *slog.Logger
}

func NewUploadHandler(documents *storage.DocumentStore, pipeline *extraction.Pipeline, tracker *job_tracker.Tracker, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		documents: documents,
		pipeline:  pipeline,
		tracker:   tracker,
		logger:    logger,
	}
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Received document upload request")

	err := r.ParseMultipartForm(25 << 20) // 25 MB limit
	if err != nil {
		writeJSONError(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "Failed to get file from form", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ownerID := strings.TrimSpace(r.FormValue("owner_id"))
	if ownerID == "" {
		writeJSONError(w, "owner_id form field is required", http.StatusBadRequest)
		return
	}

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".pdf", ".doc", ".docx":
	default:
		h.logger.Error("Unsupported file type",
			slog.String("filename", header.Filename))
		writeJSONError(w, "Unsupported file type", http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		writeJSONError(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	sum := sha256.Sum256(buf.Bytes())
	doc := &rule_type.Document{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Filename:    header.Filename,
		ContentHash: hex.EncodeToString(sum[:]),
		Status:      rule_type.StatusPending,
		Origin:      rule_type.OriginExtracted,
	}

	if err := h.documents.Insert(r.Context(), doc); err != nil {
		h.logger.Error("Failed to store document",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to store document", http.StatusInternalServerError)
		return
	}

	h.tracker.Start(doc.ID)

	// The run outlives the request; it reports through the tracker.
	go h.pipeline.Run(context.Background(), doc, buf.Bytes())

	h.logger.Info("Extraction run started",
		slog.String("document_id", doc.ID),
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"document_id": doc.ID,
		"status":      string(rule_type.StatusPending),
	})
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
