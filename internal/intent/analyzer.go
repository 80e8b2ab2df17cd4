package intent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nudge/internal/config"
	"nudge/internal/logging"
	"nudge/internal/types"
)

// NotifyFunc receives suggestions that survived the gate, the cooldown and
// the remote classifier. Implementations must not block; the analyzer calls
// it from the classification goroutine.
type NotifyFunc func(types.NotificationPayload)

// Analyzer is the heart of the intent pipeline. Events flow in through
// HandleEvent; the buffer, gate and cooldown run synchronously on that path,
// and only a passing window escalates to the remote classifier on a separate
// goroutine so ingestion never stalls on the network.
type Analyzer struct {
	cfg        config.GateConfig
	buffer     *EventBuffer
	gate       *Gate
	cooldown   *CooldownPolicy
	classifier *Classifier
	notify     NotifyFunc

	mu        sync.Mutex
	inFlight  bool
	history   []types.NotificationPayload
	historyN  int
	suggested int64
}

const notificationHistoryCap = 50

// NewAnalyzer wires the intent pipeline together.
func NewAnalyzer(cfg config.GateConfig, cooldown *CooldownPolicy, classifier *Classifier, notify NotifyFunc) *Analyzer {
	return &Analyzer{
		cfg:        cfg,
		buffer:     NewEventBuffer(cfg.BufferSize),
		gate:       NewGate(cfg),
		cooldown:   cooldown,
		classifier: classifier,
		notify:     notify,
		historyN:   notificationHistoryCap,
	}
}

// HandleEvent buffers one observed event and decides whether to escalate.
// The buffered-then-evaluated order is deliberate: the event that tripped
// the gate is part of the window the classifier sees.
func (a *Analyzer) HandleEvent(ctx context.Context, ev types.ObservedEvent) {
	a.buffer.Push(ev)

	window := a.buffer.Recent(a.cfg.RecentWindow)
	state := BuildSystemState(window, a.cfg.StateTexts)
	score := a.gate.Score(window, state)

	log := logging.Get(logging.CategoryGate)
	if score < a.gate.Threshold() {
		log.Debug("gate score %.2f below threshold %.2f, app=%q", score, a.gate.Threshold(), state.ActiveApp)
		return
	}
	if !a.cooldown.Allow() {
		log.Debug("gate passed (%.2f) but cooldown active, %s remaining", score, a.cooldown.Remaining())
		return
	}

	a.mu.Lock()
	if a.inFlight {
		a.mu.Unlock()
		log.Debug("gate passed (%.2f) but a classification is already in flight", score)
		return
	}
	a.inFlight = true
	a.mu.Unlock()

	log.Info("gate passed with score %.2f, escalating window of %d events", score, len(window))
	go a.classify(ctx, state)
}

// classify runs the remote call and surfaces a notification on a positive
// verdict. Any failure mode is logged and dropped; the pipeline keeps going.
func (a *Analyzer) classify(ctx context.Context, state types.SystemState) {
	defer func() {
		a.mu.Lock()
		a.inFlight = false
		a.mu.Unlock()
	}()

	result := a.classifier.Classify(ctx, formatStateMessage(state))
	if result.State != CallOK {
		logging.Get(logging.CategoryClassifier).Warn("no verdict (%s): %v", result.State, result.Err)
		return
	}
	if !result.Verdict.ShouldTrigger {
		logging.Get(logging.CategoryClassifier).Debug("verdict negative, confidence %.2f", result.Verdict.Confidence)
		return
	}

	a.cooldown.MarkFired()

	payload := types.NotificationPayload{
		ID:         uuid.NewString(),
		Task:       result.Verdict.Task,
		Confidence: result.Verdict.Confidence,
		ActiveApp:  state.ActiveApp,
		CreatedAt:  time.Now(),
	}
	a.recordNotification(payload)

	if a.notify != nil {
		a.notify(payload)
	}
}

func (a *Analyzer) recordNotification(p types.NotificationPayload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, p)
	if len(a.history) > a.historyN {
		a.history = a.history[len(a.history)-a.historyN:]
	}
	a.suggested++
}

// History returns a copy of the retained suggestions, oldest first.
func (a *Analyzer) History() []types.NotificationPayload {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.NotificationPayload, len(a.history))
	copy(out, a.history)
	return out
}

// Suggested returns how many suggestions have been surfaced since start.
func (a *Analyzer) Suggested() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.suggested
}

// Run drains the event channel until it closes or the context is cancelled.
func (a *Analyzer) Run(ctx context.Context, events <-chan types.ObservedEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.HandleEvent(ctx, ev)
		}
	}
}

// formatStateMessage serializes the system state into the single message
// string the classifier endpoint expects.
func formatStateMessage(state types.SystemState) string {
	var b strings.Builder
	b.WriteString("Active app: ")
	if state.ActiveApp != "" {
		b.WriteString(state.ActiveApp)
	} else {
		b.WriteString("unknown")
	}
	b.WriteString("\n")
	if state.FocusedRole != "" {
		b.WriteString("Focused element: " + state.FocusedRole + "\n")
	}
	if len(state.RecentActions) > 0 {
		b.WriteString("Recent actions: " + strings.Join(state.RecentActions, ", ") + "\n")
	}
	if len(state.RecentTexts) > 0 {
		b.WriteString("Recent text:\n")
		for _, t := range state.RecentTexts {
			b.WriteString("  " + t + "\n")
		}
	}
	return b.String()
}
