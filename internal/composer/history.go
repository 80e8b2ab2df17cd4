package composer

import (
	"sync"

	"nudge/internal/types"
)

// History retains the most recent drafts in a bounded ring so the user can
// revisit suggestions that scrolled past.
type History struct {
	mu       sync.Mutex
	drafts   []types.DraftPayload
	capacity int
}

// NewHistory creates a history retaining up to capacity drafts.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 50
	}
	return &History{capacity: capacity}
}

// Add appends a draft, evicting the oldest when full.
func (h *History) Add(draft types.DraftPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drafts = append(h.drafts, draft)
	if len(h.drafts) > h.capacity {
		h.drafts = h.drafts[len(h.drafts)-h.capacity:]
	}
}

// All returns a copy of the retained drafts, oldest first.
func (h *History) All() []types.DraftPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.DraftPayload, len(h.drafts))
	copy(out, h.drafts)
	return out
}

// Len returns how many drafts are retained.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.drafts)
}
