package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"nudge/internal/config"
	"nudge/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// passingWindow feeds enough evidence through the analyzer to clear the
// default 0.6 threshold: comms app, input role, two text changes.
func passingEvents() []types.ObservedEvent {
	return []types.ObservedEvent{
		{Type: types.EventTextEntered, App: "Mail", ElementRole: "AXTextArea",
			Text: "hi, following up on the contract", Timestamp: time.Now()},
		{Type: types.EventValueChanged, App: "Mail", ElementRole: "AXTextArea",
			Text: "hi, following up on the contract we discussed", Timestamp: time.Now()},
	}
}

func TestAnalyzerSurfacesSuggestion(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"action": "draft_email", "score": 0.9})
	}))
	defer srv.Close()

	notified := make(chan types.NotificationPayload, 1)
	a := NewAnalyzer(config.DefaultConfig().Gate,
		NewCooldownPolicy(false, 0),
		classifierFor(srv.URL),
		func(p types.NotificationPayload) { notified <- p })

	for _, ev := range passingEvents() {
		a.HandleEvent(context.Background(), ev)
	}

	select {
	case p := <-notified:
		if p.Task != "draft_email" {
			t.Errorf("Task = %q, want draft_email", p.Task)
		}
		if p.ActiveApp != "Mail" {
			t.Errorf("ActiveApp = %q, want Mail", p.ActiveApp)
		}
		if p.ID == "" {
			t.Error("notification missing id")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no suggestion surfaced")
	}

	if calls.Load() == 0 {
		t.Error("classifier endpoint never called")
	}
	if a.Suggested() != 1 {
		t.Errorf("Suggested() = %d, want 1", a.Suggested())
	}
	if got := a.History(); len(got) != 1 {
		t.Errorf("History() has %d entries, want 1", len(got))
	}
}

func TestAnalyzerCooldownSuppresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"action": "draft_email", "score": 0.9})
	}))
	defer srv.Close()

	notified := make(chan types.NotificationPayload, 4)
	a := NewAnalyzer(config.DefaultConfig().Gate,
		NewCooldownPolicy(true, time.Hour),
		classifierFor(srv.URL),
		func(p types.NotificationPayload) { notified <- p })

	for _, ev := range passingEvents() {
		a.HandleEvent(context.Background(), ev)
	}
	<-notified

	// Gate still passes, cooldown must hold everything back now.
	for _, ev := range passingEvents() {
		a.HandleEvent(context.Background(), ev)
	}
	select {
	case <-notified:
		t.Fatal("suggestion surfaced during cooldown")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAnalyzerNoVerdictOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	notified := make(chan types.NotificationPayload, 1)
	a := NewAnalyzer(config.DefaultConfig().Gate,
		NewCooldownPolicy(false, 0),
		classifierFor(srv.URL),
		func(p types.NotificationPayload) { notified <- p })

	for _, ev := range passingEvents() {
		a.HandleEvent(context.Background(), ev)
	}

	select {
	case <-notified:
		t.Fatal("failed classification must not surface a suggestion")
	case <-time.After(200 * time.Millisecond):
	}
	if a.Suggested() != 0 {
		t.Errorf("Suggested() = %d after failures, want 0", a.Suggested())
	}
}

func TestAnalyzerGateRejectsQuietWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("classifier called for a window that should not pass the gate")
	}))
	defer srv.Close()

	a := NewAnalyzer(config.DefaultConfig().Gate,
		NewCooldownPolicy(false, 0),
		classifierFor(srv.URL),
		nil)

	a.HandleEvent(context.Background(), types.ObservedEvent{
		Type: types.EventClick, App: "Finder", Timestamp: time.Now(),
	})
	time.Sleep(50 * time.Millisecond)
}

func TestAnalyzerRunDrainsChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"action": "draft_email", "score": 0.9})
	}))
	defer srv.Close()

	notified := make(chan types.NotificationPayload, 1)
	a := NewAnalyzer(config.DefaultConfig().Gate,
		NewCooldownPolicy(false, 0),
		classifierFor(srv.URL),
		func(p types.NotificationPayload) { notified <- p })

	events := make(chan types.ObservedEvent)
	done := make(chan struct{})
	go func() {
		a.Run(context.Background(), events)
		close(done)
	}()

	for _, ev := range passingEvents() {
		events <- ev
	}
	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("no suggestion from Run loop")
	}

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit on channel close")
	}
}
