package composer

// =============================================================================
// DRAFT COMPOSER
// =============================================================================
// Combines a classified intent, retrieved context and the current system
// state into a structured draft via the remote model, then runs the draft
// through a validation gate before handing it to the automation layer.

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nudge/internal/config"
	"nudge/internal/llm"
	"nudge/internal/logging"
	"nudge/internal/retrieval"
	"nudge/internal/types"
)

// Composer produces validated draft payloads.
type Composer struct {
	cfg        config.ComposerConfig
	client     llm.Client
	retriever  *retrieval.Retriever
	automation Automation
	history    *History
}

// New wires a composer. automation may be nil; drafts are then only recorded.
func New(cfg config.ComposerConfig, client llm.Client, retriever *retrieval.Retriever, automation Automation) *Composer {
	return &Composer{
		cfg:        cfg,
		client:     client,
		retriever:  retriever,
		automation: automation,
		history:    NewHistory(cfg.HistorySize),
	}
}

// History exposes the retained drafts for inspection.
func (c *Composer) History() *History {
	return c.history
}

// draftResponse mirrors the JSON shape the model is instructed to return.
type draftResponse struct {
	Kind      string `json:"kind"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`

	Title         string `json:"title"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Location      string `json:"location"`
	Notes         string `json:"notes"`
	AttendeeEmail string `json:"attendee_email"`

	Confidence float64 `json:"confidence"`
}

// Compose retrieves supporting context, asks the model for a draft, validates
// it and records it in history. A degenerate draft comes back with
// Actionable=false and a human-readable MissingInfo, never fabricated content.
func (c *Composer) Compose(ctx context.Context, intent string, state types.SystemState) (*types.DraftPayload, error) {
	timer := logging.StartTimer(logging.CategoryComposer, "Compose")
	defer timer.Stop()
	log := logging.Get(logging.CategoryComposer)

	chunks := c.retriever.Retrieve(ctx, intent)
	contextBlock := retrieval.BuildContextString(chunks)

	raw, err := c.client.CompleteWithSystem(ctx, composerSystemPrompt, buildUserPrompt(intent, contextBlock, state))
	if err != nil {
		return nil, fmt.Errorf("composition call failed: %w", err)
	}

	jsonText := extractJSONObject(raw)
	if jsonText == "" {
		return nil, fmt.Errorf("model response contained no JSON object")
	}

	var dr draftResponse
	if err := json.Unmarshal([]byte(jsonText), &dr); err != nil {
		return nil, fmt.Errorf("failed to parse draft JSON: %w", err)
	}

	draft := buildDraft(dr)
	c.validate(draft, intent)

	c.history.Add(*draft)
	log.Info("composed %s draft: actionable=%v confidence=%.2f", draft.Kind, draft.Actionable, draft.Confidence)

	if draft.Actionable && c.automation != nil {
		c.dispatch(*draft)
	}
	return draft, nil
}

func buildDraft(dr draftResponse) *types.DraftPayload {
	draft := &types.DraftPayload{
		ID:         uuid.NewString(),
		Confidence: dr.Confidence,
		Actionable: true,
		CreatedAt:  time.Now(),
	}
	if strings.EqualFold(strings.TrimSpace(dr.Kind), string(types.DraftCalendar)) {
		draft.Kind = types.DraftCalendar
		draft.Title = strings.TrimSpace(dr.Title)
		draft.Location = strings.TrimSpace(dr.Location)
		draft.Notes = strings.TrimSpace(dr.Notes)
		draft.AttendeeEmail = strings.TrimSpace(dr.AttendeeEmail)
		if t, err := time.Parse(time.RFC3339, dr.Start); err == nil {
			draft.Start = t
		}
		if t, err := time.Parse(time.RFC3339, dr.End); err == nil {
			draft.End = t
		}
		return draft
	}
	draft.Kind = types.DraftMail
	draft.Recipient = strings.TrimSpace(dr.Recipient)
	draft.Subject = strings.TrimSpace(dr.Subject)
	draft.Body = strings.TrimSpace(dr.Body)
	return draft
}

func buildUserPrompt(intent, contextBlock string, state types.SystemState) string {
	var b strings.Builder
	b.WriteString("Task: " + intent + "\n\n")
	b.WriteString("Relevant context, most relevant first:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n")
	if state.ActiveApp != "" {
		b.WriteString("The user is currently in: " + state.ActiveApp + "\n")
	}
	return b.String()
}

const composerSystemPrompt = `You are a drafting assistant for a desktop helper. Given a task and supporting context observed on the user's machine, produce a single JSON object describing the draft.

For an email draft:
{"kind": "mail", "recipient": "...", "subject": "...", "body": "...", "confidence": 0.0-1.0}

For a calendar event:
{"kind": "calendar", "title": "...", "start": "RFC3339", "end": "RFC3339", "location": "...", "notes": "...", "attendee_email": "...", "confidence": 0.0-1.0}

Rules:
- Use ONLY facts present in the provided context. Leave a field empty rather than inventing names, addresses or times.
- Do not include placeholder markers like [NAME] or <insert date>.
- Do not paste email addresses into the body text.
- Write the body as the user would, concise and natural.
- Respond with the JSON object only, no commentary.`

// extractJSONObject finds the first balanced JSON object in the text. Models
// wrap output in prose or code fences often enough that naive unmarshal of
// the whole response is not reliable.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
