package handlers

import (
	"context"
	"fmt"

	"github.com/trialscout/trialchat/internal/conversation"
	"github.com/trialscout/trialchat/internal/trials"
	"github.com/trialscout/trialchat/pkg/logging"
)

// PersonalConditionHandler responds when someone shares that they have a
// condition. It acknowledges, then steers toward a trial match: straight to
// a confirmation when a trial is already findable, otherwise collecting the
// location first.
type PersonalConditionHandler struct {
	searcher trials.Searcher
	logger   *logging.Logger
}

var _ Handler = (*PersonalConditionHandler)(nil)

// NewPersonalConditionHandler wires the handler to the trial store.
func NewPersonalConditionHandler(searcher trials.Searcher, logger *logging.Logger) *PersonalConditionHandler {
	return &PersonalConditionHandler{searcher: searcher, logger: logger}
}

func (h *PersonalConditionHandler) CanHandle(intent conversation.DetectedIntent, _ *conversation.Context) bool {
	return intent.Type == conversation.IntentPersonalCondition
}

func (h *PersonalConditionHandler) Handle(ctx context.Context, req Request) Response {
	condition := conditionFrom(req.Entities, req.Context)
	location := locationFrom(req.Entities, req.Context)

	if condition == "" {
		return Response{
			Success:   true,
			Message:   "I'm sorry to hear you're dealing with a health condition. Could you tell me what condition it is? I may be able to find a clinical trial that could help.",
			NextState: moveTo(req.States, conversation.StateAwaitingCondition, "condition needed"),
		}
	}

	resp := Response{Success: true}
	resp.updates()["focus_condition"] = condition

	if location == "" {
		resp.Message = fmt.Sprintf("I'm sorry to hear you have %s. The good news is we may have clinical trials that could help. What city or area are you located in?", condition)
		resp.NextState = moveTo(req.States, conversation.StateAwaitingLocation, "location needed for condition match")
		return resp
	}

	resp.updates()["focus_location"] = location

	found, err := h.searcher.SearchByConditionAndLocation(ctx, condition, location, 1)
	if err != nil {
		h.logger.Error("condition match lookup failed", "error", err, "condition", condition)
		resp.Message = fmt.Sprintf("I'm sorry to hear you have %s. Let me look into trials near %s; could you ask me again in a moment?", condition, location)
		resp.Err = err.Error()
		resp.Success = false
		return resp
	}
	if len(found) == 0 {
		resp.Message = fmt.Sprintf("I'm sorry to hear you have %s. I don't see an active %s trial in %s right now, but I can check other locations if you'd like.", condition, condition, location)
		resp.NextState = req.States.Current()
		return resp
	}

	t := found[0]
	resp.updates()["trial_id"] = t.ID
	resp.updates()["trial_name"] = t.Name
	resp.updates()["last_shown_trials"] = summarize(found, 1)
	resp.Message = fmt.Sprintf("I'm sorry to hear you have %s. The good news is there's a %s trial in %s that might be a fit. Would you like to check your eligibility?", condition, t.Conditions, t.SiteLocation)
	moveTo(req.States, conversation.StateTrialsShown, "trial presented")
	resp.NextState = moveTo(req.States, conversation.StateAwaitingConfirmation, "eligibility check offered")
	resp.QuickReplies = []string{"Yes, check my eligibility", "Tell me more first"}
	return resp
}
