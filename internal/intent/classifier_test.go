package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nudge/internal/config"
)

func classifierFor(url string) *Classifier {
	cfg := config.DefaultConfig().Classifier
	cfg.BaseURL = url
	cfg.Timeout = "2s"
	return NewClassifier(cfg)
}

func TestClassifyOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req["message"] == "" {
			t.Error("request missing message field")
		}
		json.NewEncoder(w).Encode(map[string]any{"action": "draft_email", "score": 0.8})
	}))
	defer srv.Close()

	result := classifierFor(srv.URL).Classify(context.Background(), "Active app: Mail")
	if result.State != CallOK {
		t.Fatalf("State = %v, want CallOK (err: %v)", result.State, result.Err)
	}
	if !result.Verdict.ShouldTrigger {
		t.Error("verdict should trigger at score 0.8")
	}
	if result.Verdict.Task != "draft_email" {
		t.Errorf("Task = %q, want draft_email", result.Verdict.Task)
	}
}

func TestClassifyBelowThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"action": "draft_email", "score": 0.2})
	}))
	defer srv.Close()

	result := classifierFor(srv.URL).Classify(context.Background(), "msg")
	if result.State != CallOK {
		t.Fatalf("State = %v, want CallOK", result.State)
	}
	if result.Verdict.ShouldTrigger {
		t.Error("verdict must not trigger below threshold")
	}
}

func TestClassifyNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := classifierFor(srv.URL).Classify(context.Background(), "msg")
	if result.State != CallNetworkError {
		t.Errorf("State = %v, want CallNetworkError", result.State)
	}
	if result.Verdict.ShouldTrigger {
		t.Error("failed call must not produce a verdict")
	}
}

func TestClassifyMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	result := classifierFor(srv.URL).Classify(context.Background(), "msg")
	if result.State != CallMalformedResponse {
		t.Errorf("State = %v, want CallMalformedResponse", result.State)
	}
}

func TestClassifyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]any{"action": "x", "score": 1.0})
	}))
	defer srv.Close()

	c := classifierFor(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := c.Classify(ctx, "msg")
	if result.State != CallTimedOut {
		t.Errorf("State = %v, want CallTimedOut", result.State)
	}
}

func TestClassifyNetworkError(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	result := classifierFor(srv.URL).Classify(context.Background(), "msg")
	if result.State != CallNetworkError {
		t.Errorf("State = %v, want CallNetworkError", result.State)
	}
}

func TestClassifyClampsScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"action": "draft_email", "score": 3.5})
	}))
	defer srv.Close()

	result := classifierFor(srv.URL).Classify(context.Background(), "msg")
	if result.Verdict.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want clamped to 1.0", result.Verdict.Confidence)
	}
}
