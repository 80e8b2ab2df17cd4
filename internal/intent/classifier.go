package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"nudge/internal/config"
	"nudge/internal/logging"
	"nudge/internal/types"
)

// CallState classifies the outcome of a remote call. Every failure mode
// collapses to "this signal contributed nothing" at the consumer; the state
// exists so logs and tests can tell the modes apart.
type CallState int

const (
	CallOK CallState = iota
	CallTimedOut
	CallNetworkError
	CallMalformedResponse
)

// String returns the state label.
func (s CallState) String() string {
	switch s {
	case CallOK:
		return "ok"
	case CallTimedOut:
		return "timed_out"
	case CallNetworkError:
		return "network_error"
	case CallMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// ClassifyResult is the typed result of a classification call.
type ClassifyResult struct {
	State   CallState
	Verdict types.IntentVerdict
	Err     error
}

// Classifier calls the remote intent classification endpoint. The contract:
// POST {"message": <string>} returns {"action": <string>, "score": <0..1>}.
// Non-200 responses and malformed JSON are "no verdict", never an error
// surfaced to the user.
type Classifier struct {
	baseURL   string
	threshold float64
	client    *http.Client
}

// NewClassifier creates a classifier client from configuration.
func NewClassifier(cfg config.ClassifierConfig) *Classifier {
	return &Classifier{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		threshold: cfg.TriggerThreshold,
		client: &http.Client{
			Timeout: cfg.TimeoutDuration(),
		},
	}
}

type classifyRequest struct {
	Message string `json:"message"`
}

type classifyResponse struct {
	Action string  `json:"action"`
	Score  float64 `json:"score"`
}

// Classify sends the recent-event context to the remote classifier.
func (c *Classifier) Classify(ctx context.Context, message string) ClassifyResult {
	timer := logging.StartTimer(logging.CategoryClassifier, "Classify")
	defer timer.Stop()

	body, err := json.Marshal(classifyRequest{Message: message})
	if err != nil {
		return ClassifyResult{State: CallMalformedResponse, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return ClassifyResult{State: CallNetworkError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		state := CallNetworkError
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			state = CallTimedOut
		}
		logging.Get(logging.CategoryClassifier).Warn("classification call failed (%s): %v", state, err)
		return ClassifyResult{State: state, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		logging.Get(logging.CategoryClassifier).Warn("%v", err)
		return ClassifyResult{State: CallNetworkError, Err: err}
	}

	var cr classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		logging.Get(logging.CategoryClassifier).Warn("malformed classifier response: %v", err)
		return ClassifyResult{State: CallMalformedResponse, Err: err}
	}

	verdict := types.IntentVerdict{
		Task:          strings.TrimSpace(cr.Action),
		Confidence:    clamp01(cr.Score),
		ShouldTrigger: strings.TrimSpace(cr.Action) != "" && cr.Score >= c.threshold,
	}

	logging.Get(logging.CategoryClassifier).Info("verdict: trigger=%v confidence=%.2f task=%q",
		verdict.ShouldTrigger, verdict.Confidence, verdict.Task)
	return ClassifyResult{State: CallOK, Verdict: verdict}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
