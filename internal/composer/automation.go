package composer

import (
	"nudge/internal/logging"
	"nudge/internal/types"
)

// Automation is the external collaborator that turns an actionable draft
// into a user-visible artifact (mail compose window, calendar entry).
type Automation interface {
	OpenMailDraft(recipient, subject, body string) error
	CreateCalendarEvent(draft types.DraftPayload) error
}

// dispatch hands an actionable draft to the automation layer. Fire and
// forget: a failed handoff is logged, the draft stays in history either way.
func (c *Composer) dispatch(draft types.DraftPayload) {
	log := logging.Get(logging.CategoryAutomation)
	var err error
	switch draft.Kind {
	case types.DraftCalendar:
		err = c.automation.CreateCalendarEvent(draft)
	default:
		err = c.automation.OpenMailDraft(draft.Recipient, draft.Subject, draft.Body)
	}
	if err != nil {
		log.Error("automation handoff for %s draft %s failed: %v", draft.Kind, draft.ID, err)
		return
	}
	log.Info("dispatched %s draft %s", draft.Kind, draft.ID)
}

// LogOnlyAutomation records what would have happened. Default when no
// platform integration is wired in.
type LogOnlyAutomation struct{}

func (LogOnlyAutomation) OpenMailDraft(recipient, subject, body string) error {
	logging.Get(logging.CategoryAutomation).Info("would open mail draft to=%q subject=%q body_len=%d",
		recipient, subject, len(body))
	return nil
}

func (LogOnlyAutomation) CreateCalendarEvent(draft types.DraftPayload) error {
	logging.Get(logging.CategoryAutomation).Info("would create calendar event title=%q start=%s",
		draft.Title, draft.Start.Format("2006-01-02 15:04"))
	return nil
}
