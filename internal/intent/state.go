package intent

import (
	"strings"

	"nudge/internal/types"
)

// BuildSystemState derives an ephemeral snapshot from the recent event
// window: active app, focused element role, the last few distinct texts and
// action labels, newest first. Rebuilt on every event, never persisted.
func BuildSystemState(window []types.BufferedEvent, maxTexts int) types.SystemState {
	if maxTexts <= 0 {
		maxTexts = 5
	}

	var state types.SystemState
	seenText := make(map[string]bool)

	// Walk newest to oldest so the snapshot reflects the current situation.
	for i := len(window) - 1; i >= 0; i-- {
		ev := window[i].Event

		if state.ActiveApp == "" && ev.App != "" {
			state.ActiveApp = ev.App
		}
		if state.FocusedRole == "" && ev.ElementRole != "" {
			state.FocusedRole = ev.ElementRole
		}

		if len(state.RecentTexts) < maxTexts && ev.HasText() {
			text := strings.TrimSpace(ev.Text)
			key := strings.ToLower(text)
			if !seenText[key] {
				seenText[key] = true
				state.RecentTexts = append(state.RecentTexts, text)
			}
		}

		if len(state.RecentActions) < maxTexts {
			state.RecentActions = append(state.RecentActions, string(ev.Type))
		}
	}

	return state
}
