package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/trialscout/trialchat/internal/conversation"
	"github.com/trialscout/trialchat/internal/trials"
	"github.com/trialscout/trialchat/pkg/logging"
)

// TrialInfoHandler answers "tell me about the X trial" requests with the
// details of a single trial, collecting a condition or location first when
// the request is underspecified.
type TrialInfoHandler struct {
	searcher trials.Searcher
	fallback *trials.Fallback
	logger   *logging.Logger
}

var _ Handler = (*TrialInfoHandler)(nil)

// NewTrialInfoHandler wires the handler to the trial store.
func NewTrialInfoHandler(searcher trials.Searcher, fallback *trials.Fallback, logger *logging.Logger) *TrialInfoHandler {
	return &TrialInfoHandler{searcher: searcher, fallback: fallback, logger: logger}
}

func (h *TrialInfoHandler) CanHandle(intent conversation.DetectedIntent, convCtx *conversation.Context) bool {
	if intent.Type == conversation.IntentTrialInfoRequest {
		return true
	}
	return intent.Type == conversation.IntentConditionAnswer &&
		convCtx != nil && convCtx.StateDataBool("awaiting_trial_specification")
}

func (h *TrialInfoHandler) Handle(ctx context.Context, req Request) Response {
	condition := conditionFrom(req.Entities, req.Context)
	location := locationFrom(req.Entities, req.Context)

	if condition == "" {
		resp := Response{Success: true}
		resp.Message = "Which trial would you like to know about? Tell me the condition it treats and I'll pull up the details."
		resp.updates()["state_data"] = map[string]any{"awaiting_trial_specification": true}
		resp.NextState = req.States.Current()
		return resp
	}
	if location == "" {
		resp := Response{Success: true}
		resp.Message = fmt.Sprintf("I can tell you about our %s trials. What location are you interested in?", condition)
		resp.updates()["focus_condition"] = condition
		resp.updates()["state_data"] = map[string]any{"awaiting_trial_specification": false}
		resp.NextState = moveTo(req.States, conversation.StateAwaitingLocation, "location needed for trial details")
		return resp
	}

	found, err := h.searcher.SearchByConditionAndLocation(ctx, condition, location, 3)
	if err != nil {
		h.logger.Error("trial details lookup failed", "error", err, "condition", condition, "location", location)
		return Response{
			Success: false,
			Message: "I'm having trouble pulling up trial details right now. Please try again in a moment.",
			Err:     err.Error(),
		}
	}

	resp := Response{Success: true}
	resp.updates()["focus_condition"] = condition
	resp.updates()["focus_location"] = location
	resp.updates()["state_data"] = map[string]any{"awaiting_trial_specification": false}

	if len(found) == 0 {
		resp.Message = h.fallback.SuggestAlternatives(ctx, condition, location)
		resp.NextState = req.States.Current()
		return resp
	}

	resp.Message = formatTrialDetails(found[0], len(found)-1)
	resp.updates()["trial_id"] = found[0].ID
	resp.updates()["trial_name"] = found[0].Name
	resp.updates()["last_shown_trials"] = summarize(found[:1], 1)
	resp.updates()["just_showed_trial_info"] = true
	resp.NextState = moveTo(req.States, conversation.StateTrialsShown, "trial details shown")
	resp.QuickReplies = []string{"Check my eligibility", "Find other trials"}
	return resp
}

// formatTrialDetails renders one trial as a detail card with an eligibility
// prompt, noting how many sibling trials were held back.
func formatTrialDetails(t trials.Trial, others int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s Clinical Trial**\n\n", titleWords(t.Conditions))
	fmt.Fprintf(&b, "Location: %s\n", t.SiteLocation)
	if t.InvestigatorName != "" {
		fmt.Fprintf(&b, "Investigator: %s\n", t.InvestigatorName)
	}
	if t.Phase != "" {
		fmt.Fprintf(&b, "Phase: %s\n", t.Phase)
	}
	if t.BriefSummary != "" {
		fmt.Fprintf(&b, "\n%s\n", t.BriefSummary)
	}
	if others > 0 {
		fmt.Fprintf(&b, "\nThere %s %d other %s trial%s in the area.\n", isAre(others), others, t.Conditions, plural(others))
	}
	b.WriteString("\nWould you like to check your eligibility for this trial?")
	return b.String()
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func isAre(n int) string {
	if n == 1 {
		return "is"
	}
	return "are"
}
