package composer

import (
	"regexp"
	"strings"

	"nudge/internal/logging"
	"nudge/internal/types"
)

var (
	placeholderPattern = regexp.MustCompile(`\[[A-Za-z][^\]]*\]|<[A-Za-z][^>]*>|\{\{[^}]*\}\}|\bXXX+\b|\bTBD\b`)
	emailPattern       = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// validate runs the draft through the degenerate-output gate. Offending
// fields are cleared when the rest of the draft is still useful; drafts with
// nothing left to act on are marked non-actionable with a reason. Validation
// never fabricates content to pass itself.
func (c *Composer) validate(draft *types.DraftPayload, intent string) {
	log := logging.Get(logging.CategoryComposer)
	var missing []string

	switch draft.Kind {
	case types.DraftCalendar:
		if draft.Title == "" {
			missing = append(missing, "event title")
		}
		if draft.Start.IsZero() {
			missing = append(missing, "start time")
		}
		if placeholderPattern.MatchString(draft.Title) || placeholderPattern.MatchString(draft.Notes) {
			log.Warn("calendar draft contains placeholder markers, clearing notes")
			draft.Notes = ""
			if placeholderPattern.MatchString(draft.Title) {
				draft.Title = ""
				missing = append(missing, "event title")
			}
		}

	default:
		if isRestatement(draft.Subject, intent) {
			log.Warn("draft subject restates the task, clearing")
			draft.Subject = ""
		}
		if placeholderPattern.MatchString(draft.Subject) {
			log.Warn("draft subject contains unresolved placeholder markers, clearing")
			draft.Subject = ""
		}
		if isRestatement(draft.Body, intent) {
			log.Warn("draft body restates the task, rejecting")
			draft.Body = ""
			missing = append(missing, "message body")
		}
		if placeholderPattern.MatchString(draft.Body) {
			log.Warn("draft body contains unresolved placeholder markers, rejecting")
			draft.Body = ""
			missing = append(missing, "message body")
		}
		if emailPattern.MatchString(draft.Body) {
			log.Warn("draft body contains a raw email address, rejecting")
			draft.Body = ""
			missing = append(missing, "message body")
		}
		if draft.Body != "" && len(draft.Body) < c.cfg.MinBodyChars {
			log.Warn("draft body too short (%d < %d chars), rejecting", len(draft.Body), c.cfg.MinBodyChars)
			draft.Body = ""
			missing = append(missing, "message body")
		}
		// The recipient is optional in the mail handoff; the compose window
		// opens with the To field blank for the user to fill.
		if draft.Recipient == "" {
			log.Debug("mail draft has no recipient")
		}
	}

	if len(missing) > 0 {
		draft.Actionable = false
		draft.MissingInfo = "Needs " + strings.Join(dedupeStrings(missing), ", ")
	}
}

// isRestatement reports whether the text is the raw intent or a trivial
// variation of it. A body the user could have typed by reading their own
// request back is worthless as a draft.
func isRestatement(text, intent string) bool {
	t := normalizeForCompare(text)
	i := normalizeForCompare(intent)
	if t == "" || i == "" {
		return false
	}
	if t == i {
		return true
	}
	// Near-identical: one contains the other and the lengths are close.
	if strings.Contains(t, i) && len(t) < len(i)+20 {
		return true
	}
	if strings.Contains(i, t) && len(i) < len(t)+20 {
		return true
	}
	return false
}

func normalizeForCompare(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func dedupeStrings(items []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
