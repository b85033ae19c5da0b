package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestBackendWriter(t *testing.T, endpoint string) *BackendWriter {
	t.Helper()
	w, err := NewBackendWriter(BackendConfig{
		APIKey:    "secret",
		OrgID:     "org 1",
		DatasetID: "model-7",
		Endpoint:  endpoint,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.retry = RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiple: 2}
	return w
}

func TestBackendWriterUploads(t *testing.T) {
	var got ProfileSummary
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.EscapedPath() != "/v1/organizations/org%201/datasets/model-7/profiles" {
			t.Errorf("unexpected path %s", r.URL.EscapedPath())
		}
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("invalid body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	w := newTestBackendWriter(t, server.URL+"/")
	err := w.Write(context.Background(), ProfileSummary{Dataset: "churn", RecordCount: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RecordCount != 4 || got.Dataset != "churn" {
		t.Fatalf("unexpected uploaded profile: %+v", got)
	}
}

func TestBackendWriterRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w := newTestBackendWriter(t, server.URL)
	if err := w.Write(context.Background(), ProfileSummary{Dataset: "churn"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestBackendWriterDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	w := newTestBackendWriter(t, server.URL)
	err := w.Write(context.Background(), ProfileSummary{Dataset: "churn"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

func TestBackendWriterGivesUp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	w := newTestBackendWriter(t, server.URL)
	if err := w.Write(context.Background(), ProfileSummary{Dataset: "churn"}); err == nil {
		t.Fatal("expected error after retries")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestNewBackendWriterValidation(t *testing.T) {
	if _, err := NewBackendWriter(BackendConfig{Endpoint: "http://x", OrgID: "o"}, nil); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := NewBackendWriter(BackendConfig{APIKey: "k", OrgID: "o"}, nil); err == nil {
		t.Fatal("expected error without endpoint")
	}
}
