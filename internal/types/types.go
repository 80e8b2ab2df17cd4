// Package types defines the shared data model for the nudge pipeline:
// observed events flowing in from the OS tap, context chunks at rest in the
// store, and the structured payloads produced by the classifier and composer.
package types

import (
	"strings"
	"time"
)

// =============================================================================
// ENTITIES
// =============================================================================

// EntityType classifies an extracted named entity.
type EntityType string

const (
	EntityPerson  EntityType = "person"
	EntityCompany EntityType = "company"
	EntityProject EntityType = "project"
	EntityOther   EntityType = "other"
)

// Entity is a typed named value extracted from free text.
type Entity struct {
	Type  EntityType `json:"type"`
	Value string     `json:"value"`
}

// Matches reports whether two entities refer to the same thing for overlap
// scoring: same type and a case-insensitive substring match in either
// direction. "Kamil" matches "Kamil Nowak" and vice versa.
func (e Entity) Matches(other Entity) bool {
	if e.Type != other.Type {
		return false
	}
	a := strings.ToLower(strings.TrimSpace(e.Value))
	b := strings.ToLower(strings.TrimSpace(other.Value))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// LeadingToken returns the first whitespace-separated token of the value.
// Used to re-query partial name matches (first name alone).
func (e Entity) LeadingToken() string {
	fields := strings.Fields(e.Value)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// =============================================================================
// CONTEXT CHUNKS
// =============================================================================

// Source identifies the provenance of a context chunk.
type Source string

const (
	SourceOCR          Source = "ocr"
	SourceNotification Source = "notification"
	SourceUserAction   Source = "user-action"
	SourceMail         Source = "mail"
	SourceSlack        Source = "slack"
	SourceApp          Source = "app"
)

// Chunk is the atomic unit of retrievable knowledge: a timestamped piece of
// observed text with provenance, extracted entities, and an optional
// embedding. Chunks are append-only; the store never mutates Content,
// Entities, or Timestamp after insertion.
type Chunk struct {
	ID        string    `json:"id"`
	Source    Source    `json:"source"`
	Content   string    `json:"content"`
	Entities  []Entity  `json:"entities,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Topic     string    `json:"topic,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Age returns how old the chunk is relative to now.
func (c *Chunk) Age(now time.Time) time.Duration {
	return now.Sub(c.Timestamp)
}

// =============================================================================
// OBSERVED EVENTS
// =============================================================================

// EventType labels a raw observation from the OS-level tap.
type EventType string

const (
	EventClick        EventType = "click"
	EventTextEntered  EventType = "text-entered"
	EventValueChanged EventType = "value-changed"
	EventFocusChanged EventType = "focus-changed"
	EventNotification EventType = "notification"
	EventOCRDiff      EventType = "ocr-diff"
	EventAppActivated EventType = "app-activated"
)

// ObservedEvent is a single raw observation: something the user did or
// something that appeared on screen.
type ObservedEvent struct {
	Type        EventType `json:"type"`
	App         string    `json:"app"`
	ElementRole string    `json:"element_role,omitempty"`
	Text        string    `json:"text,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// HasText reports whether the event carries any textual content.
func (e ObservedEvent) HasText() bool {
	return strings.TrimSpace(e.Text) != ""
}

// IsTextChange reports whether the event represents the user producing text.
func (e ObservedEvent) IsTextChange() bool {
	return e.Type == EventTextEntered || e.Type == EventValueChanged
}

// BufferedEvent is an observed event held in the analyzer's bounded ring.
type BufferedEvent struct {
	Event      ObservedEvent
	BufferedAt time.Time
}

// SystemState is an ephemeral snapshot derived from the recent event window.
// Rebuilt on every incoming event, never persisted.
type SystemState struct {
	ActiveApp     string
	FocusedRole   string
	RecentTexts   []string // last K distinct pieces of text, newest first
	RecentActions []string // last K event type labels, newest first
}

// TotalTextLen returns the combined length of the recent distinct texts.
func (s SystemState) TotalTextLen() int {
	n := 0
	for _, t := range s.RecentTexts {
		n += len(t)
	}
	return n
}

// =============================================================================
// CLASSIFIER / COMPOSER PAYLOADS
// =============================================================================

// IntentVerdict is the structured result of a remote classification call.
type IntentVerdict struct {
	ShouldTrigger bool    `json:"should_trigger"`
	Confidence    float64 `json:"confidence"`
	Task          string  `json:"task"`
}

// NotificationPayload is a suggestion surfaced to the user after the gate
// and classifier both pass.
type NotificationPayload struct {
	ID         string    `json:"id"`
	Task       string    `json:"task"`
	Confidence float64   `json:"confidence"`
	ActiveApp  string    `json:"active_app,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DraftKind identifies what kind of artifact a draft payload describes.
type DraftKind string

const (
	DraftMail     DraftKind = "mail"
	DraftCalendar DraftKind = "calendar"
)

// DraftPayload is the validated output of a composition call. Exactly one of
// the mail or calendar field groups is populated depending on Kind.
type DraftPayload struct {
	ID         string    `json:"id"`
	Kind       DraftKind `json:"kind"`
	Confidence float64   `json:"confidence"`

	// Mail fields
	Recipient string `json:"recipient,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body,omitempty"`

	// Calendar fields
	Title         string    `json:"title,omitempty"`
	Start         time.Time `json:"start,omitempty"`
	End           time.Time `json:"end,omitempty"`
	Location      string    `json:"location,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	AttendeeEmail string    `json:"attendee_email,omitempty"`

	// Actionable is false when the validation gate found the draft degenerate
	// or under-specified; MissingInfo then explains what the user must fill in.
	Actionable  bool      `json:"actionable"`
	MissingInfo string    `json:"missing_info,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
