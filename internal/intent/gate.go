package intent

import (
	"strings"

	"nudge/internal/config"
	"nudge/internal/logging"
	"nudge/internal/types"
)

// Gate is the cheap, local scorer that decides whether an event window is
// worth an expensive remote classification call. Score is synchronous and
// non-suspending: it runs on every event without added latency. All
// constants come from configuration so tests can inject thresholds.
type Gate struct {
	cfg config.GateConfig

	systemApps map[string]bool
	commsApps  map[string]bool
	inputRoles map[string]bool
}

// NewGate creates a gate from configuration.
func NewGate(cfg config.GateConfig) *Gate {
	return &Gate{
		cfg:        cfg,
		systemApps: lowerSet(cfg.SystemApps),
		commsApps:  lowerSet(cfg.CommsApps),
		inputRoles: lowerSet(cfg.TextInputRoles),
	}
}

// Score returns a value in [0,1] for the given window and state.
//
// Hard rejects (score forced to 0): no text content at all, a known
// system/chrome active app, or total recent text below the minimum. The
// rejects are deliberately aggressive about noise while keeping zero false
// negatives for obviously-actionable text.
func (g *Gate) Score(window []types.BufferedEvent, state types.SystemState) float64 {
	if len(state.RecentTexts) == 0 {
		logging.GateDebug("hard reject: no text in window")
		return 0
	}
	if g.systemApps[strings.ToLower(state.ActiveApp)] {
		logging.GateDebug("hard reject: system app %q active", state.ActiveApp)
		return 0
	}
	if state.TotalTextLen() < g.cfg.MinTextLen {
		logging.GateDebug("hard reject: total text %d < min %d", state.TotalTextLen(), g.cfg.MinTextLen)
		return 0
	}

	score := g.cfg.AnyTextWeight

	textChanges := 0
	for _, be := range window {
		if be.Event.IsTextChange() {
			textChanges++
		}
	}
	if textChanges >= 2 {
		score += g.cfg.TextChangeBonus
	}
	if g.commsApps[strings.ToLower(state.ActiveApp)] {
		score += g.cfg.CommsAppBonus
	}
	if g.inputRoles[strings.ToLower(state.FocusedRole)] {
		score += g.cfg.TextInputRoleBonus
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	logging.GateDebug("score=%.2f app=%q role=%q text_changes=%d text_len=%d",
		score, state.ActiveApp, state.FocusedRole, textChanges, state.TotalTextLen())
	return score
}

// Threshold returns the configured invocation threshold.
func (g *Gate) Threshold() float64 {
	return g.cfg.Threshold
}

func lowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[strings.ToLower(s)] = true
	}
	return set
}
