package composer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"nudge/internal/config"
	"nudge/internal/entity"
	"nudge/internal/retrieval"
	"nudge/internal/types"
)

// fakeLLM returns a canned completion.
type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.prompts = append(f.prompts, userPrompt)
	return f.response, f.err
}

func (f *fakeLLM) Model() string { return "fake" }

// emptySource satisfies retrieval.ChunkSource with no data.
type emptySource struct{}

func (emptySource) Recent(source types.Source, limit int) ([]types.Chunk, error) { return nil, nil }
func (emptySource) SearchText(query string, limit int) ([]types.Chunk, error)    { return nil, nil }
func (emptySource) SearchSimilar(ctx context.Context, query []float32, topK int) ([]types.Chunk, error) {
	return nil, nil
}
func (emptySource) GetByEntity(entityType types.EntityType, value string) ([]types.Chunk, error) {
	return nil, nil
}

// recordingAutomation captures dispatched drafts.
type recordingAutomation struct {
	mails    []string
	calendar []types.DraftPayload
}

func (r *recordingAutomation) OpenMailDraft(recipient, subject, body string) error {
	r.mails = append(r.mails, recipient)
	return nil
}

func (r *recordingAutomation) CreateCalendarEvent(draft types.DraftPayload) error {
	r.calendar = append(r.calendar, draft)
	return nil
}

func newTestComposerWith(llmClient *fakeLLM, auto Automation) *Composer {
	cfg := config.DefaultConfig()
	retriever := retrieval.New(cfg.Retrieval, emptySource{}, nil, entity.New())
	return New(cfg.Composer, llmClient, retriever, auto)
}

func TestComposeMailDraft(t *testing.T) {
	llmClient := &fakeLLM{response: `{
		"kind": "mail",
		"recipient": "Kamil",
		"subject": "Launch sync",
		"body": "Hi Kamil, the launch timeline is ready for review. Could we sync tomorrow morning to walk through it?",
		"confidence": 0.85
	}`}
	auto := &recordingAutomation{}
	c := newTestComposerWith(llmClient, auto)

	draft, err := c.Compose(context.Background(), "send email to Kamil about the launch", types.SystemState{ActiveApp: "Mail"})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if !draft.Actionable {
		t.Errorf("draft not actionable: %q", draft.MissingInfo)
	}
	if draft.Recipient != "Kamil" || draft.Subject != "Launch sync" {
		t.Errorf("draft fields wrong: %+v", draft)
	}
	if draft.ID == "" || draft.CreatedAt.IsZero() {
		t.Error("draft missing id or timestamp")
	}
	if len(auto.mails) != 1 {
		t.Errorf("automation received %d mail drafts, want 1", len(auto.mails))
	}
	if c.History().Len() != 1 {
		t.Errorf("history has %d drafts, want 1", c.History().Len())
	}
}

func TestComposeJSONWrappedInProse(t *testing.T) {
	llmClient := &fakeLLM{response: "Sure, here's the draft:\n```json\n" + `{"kind":"mail","recipient":"Anna","subject":"Numbers","body":"Hi Anna, attaching the quarterly numbers we discussed during the review last week.","confidence":0.7}` + "\n```\nLet me know!"}
	c := newTestComposerWith(llmClient, nil)

	draft, err := c.Compose(context.Background(), "send numbers to Anna", types.SystemState{})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if draft.Recipient != "Anna" {
		t.Errorf("Recipient = %q, want Anna", draft.Recipient)
	}
}

func TestComposeCalendarDraft(t *testing.T) {
	llmClient := &fakeLLM{response: `{
		"kind": "calendar",
		"title": "Launch sync with Kamil",
		"start": "2026-09-01T10:00:00Z",
		"end": "2026-09-01T10:30:00Z",
		"confidence": 0.8
	}`}
	auto := &recordingAutomation{}
	c := newTestComposerWith(llmClient, auto)

	draft, err := c.Compose(context.Background(), "schedule a sync with Kamil", types.SystemState{})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if draft.Kind != types.DraftCalendar {
		t.Fatalf("Kind = %q, want calendar", draft.Kind)
	}
	if draft.Start.IsZero() {
		t.Error("start time not parsed")
	}
	if len(auto.calendar) != 1 {
		t.Errorf("automation received %d calendar drafts, want 1", len(auto.calendar))
	}
}

func TestComposeDegenerateDraftNotDispatched(t *testing.T) {
	llmClient := &fakeLLM{response: `{"kind":"mail","recipient":"Kamil","subject":"s","body":"send email to Kamil about the launch","confidence":0.9}`}
	auto := &recordingAutomation{}
	c := newTestComposerWith(llmClient, auto)

	draft, err := c.Compose(context.Background(), "send email to Kamil about the launch", types.SystemState{})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if draft.Actionable {
		t.Error("restatement draft must be non-actionable")
	}
	if len(auto.mails) != 0 {
		t.Error("non-actionable draft must not reach automation")
	}
	// Still recorded so the user can inspect what was rejected.
	if c.History().Len() != 1 {
		t.Errorf("history has %d drafts, want 1", c.History().Len())
	}
}

func TestComposeErrors(t *testing.T) {
	t.Run("llm failure", func(t *testing.T) {
		c := newTestComposerWith(&fakeLLM{err: errors.New("down")}, nil)
		if _, err := c.Compose(context.Background(), "x", types.SystemState{}); err == nil {
			t.Error("want error on llm failure")
		}
	})
	t.Run("no json in response", func(t *testing.T) {
		c := newTestComposerWith(&fakeLLM{response: "I cannot help with that."}, nil)
		if _, err := c.Compose(context.Background(), "x", types.SystemState{}); err == nil {
			t.Error("want error when response has no JSON object")
		}
	})
}

func TestComposePromptCarriesContextSentinel(t *testing.T) {
	llmClient := &fakeLLM{response: `{"kind":"mail","recipient":"Anna","subject":"s","body":"Hi Anna, quick note to confirm the plan for tomorrow works on my side.","confidence":0.5}`}
	c := newTestComposerWith(llmClient, nil)

	if _, err := c.Compose(context.Background(), "confirm plan with Anna", types.SystemState{}); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if len(llmClient.prompts) != 1 || !strings.Contains(llmClient.prompts[0], retrieval.NoContextSentinel) {
		t.Error("prompt missing the empty-context sentinel")
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"prose around", `sure: {"a":{"b":2}} done`, `{"a":{"b":2}}`},
		{"brace inside string", `{"a":"}"}`, `{"a":"}"}`},
		{"no object", "nothing here", ""},
		{"unbalanced", `{"a":1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSONObject(tt.in); got != tt.want {
				t.Errorf("extractJSONObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHistoryRing(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(types.DraftPayload{ID: string(rune('a' + i)), CreatedAt: time.Now()})
	}
	got := h.All()
	if len(got) != 3 {
		t.Fatalf("history kept %d drafts, want 3", len(got))
	}
	if got[0].ID != "c" || got[2].ID != "e" {
		t.Errorf("history order wrong: %v", got)
	}
}
