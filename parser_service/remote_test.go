package parser_service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRemoteClientParse(t *testing.T) {
	var gotAuth, gotContentType, gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pages": [{"page": 1, "text": "first page"}, {"page": 2, "text": "second page"}], "total_pages": 2, "parse_duration_ms": 120}`))
	}))
	defer srv.Close()

	client := NewRemoteClient(srv.URL, "secret-token", testLogger())
	result, err := client.Parse(context.Background(), []byte("%PDF-1.7 raw bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/parse" {
		t.Errorf("path = %q, want /parse", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotContentType != "application/octet-stream" {
		t.Errorf("content type = %q", gotContentType)
	}
	if string(gotBody) != "%PDF-1.7 raw bytes" {
		t.Error("request body must carry the raw document bytes")
	}
	if result.TotalPages != 2 || len(result.Pages) != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestRemoteClientRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"pages": [{"page": 1, "text": "ok"}], "total_pages": 1}`))
	}))
	defer srv.Close()

	client := NewRemoteClient(srv.URL, "", testLogger())
	result, err := client.Parse(context.Background(), []byte("data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if result.TotalPages != 1 {
		t.Errorf("total pages = %d, want 1", result.TotalPages)
	}
}

func TestRemoteClientDoesNotRetryAuthFailures(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewRemoteClient(srv.URL, "wrong-token", testLogger())
	_, err := client.Parse(context.Background(), []byte("data"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for a 4xx response", attempts)
	}
}

func TestFullTextSkipsEmptyPages(t *testing.T) {
	result := &ParseResult{Pages: []Page{
		{Page: 1, Text: "first"},
		{Page: 2, Text: "   "},
		{Page: 3, Text: "third"},
	}}

	got := result.FullText()
	if got != "first\n\nthird" {
		t.Errorf("full text = %q", got)
	}
	if strings.Contains(got, "   ") {
		t.Error("blank pages must not contribute separators")
	}
}

func TestFullTextEmptyResult(t *testing.T) {
	result := &ParseResult{}
	if got := result.FullText(); got != "" {
		t.Errorf("full text = %q, want empty", got)
	}
}
