package db

import (
	"strings"
	"testing"
	"time"
)

func TestConnectRejectsEmptyURL(t *testing.T) {
	_, err := Connect("")
	if err == nil {
		t.Fatal("expected an error for an empty DATABASE_URL")
	}
}

func TestConnectWithRetryRejectsMalformedURL(t *testing.T) {
	_, err := connectWithRetry("://not-a-dsn", 3, time.Millisecond)
	if err == nil {
		t.Fatal("expected an error for a malformed DSN")
	}
	if !strings.Contains(err.Error(), "unable to parse DATABASE_URL") {
		t.Errorf("error = %v, want a parse failure", err)
	}
}

func TestConnectWithRetryReturnsErrorAfterExhaustion(t *testing.T) {
	// Port 1 refuses connections immediately, so every attempt fails
	// fast and the loop must return an error rather than hand back a
	// nil pool.
	pool, err := connectWithRetry("postgres://postgres@127.0.0.1:1/nope", 2, time.Millisecond)
	if err == nil {
		t.Fatal("expected an error after exhausting attempts")
	}
	if pool != nil {
		t.Error("pool must be nil on failure")
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("error = %v, want the attempt count", err)
	}
}
