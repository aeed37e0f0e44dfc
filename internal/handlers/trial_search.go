package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/trialscout/trialchat/internal/conversation"
	"github.com/trialscout/trialchat/internal/trials"
	"github.com/trialscout/trialchat/pkg/logging"
)

const searchLimit = 5

// TrialSearchHandler runs condition+location searches and collects whichever
// criterion is still missing. It also absorbs location and condition answers
// given while the trial search flow is waiting on them.
type TrialSearchHandler struct {
	searcher trials.Searcher
	fallback *trials.Fallback
	logger   *logging.Logger
}

var _ Handler = (*TrialSearchHandler)(nil)

// NewTrialSearchHandler wires the handler to the trial store.
func NewTrialSearchHandler(searcher trials.Searcher, fallback *trials.Fallback, logger *logging.Logger) *TrialSearchHandler {
	return &TrialSearchHandler{searcher: searcher, fallback: fallback, logger: logger}
}

func (h *TrialSearchHandler) CanHandle(intent conversation.DetectedIntent, convCtx *conversation.Context) bool {
	switch intent.Type {
	case conversation.IntentTrialSearch, conversation.IntentLocationSearch:
		return true
	case conversation.IntentLocationAnswer:
		return convCtx != nil && convCtx.State == conversation.StateAwaitingLocation &&
			!convCtx.StateDataBool("awaiting_prescreening")
	case conversation.IntentConditionAnswer:
		return convCtx != nil && convCtx.State == conversation.StateAwaitingCondition &&
			!convCtx.StateDataBool("awaiting_condition_for_eligibility")
	}
	return false
}

func (h *TrialSearchHandler) Handle(ctx context.Context, req Request) Response {
	condition := conditionFrom(req.Entities, req.Context)
	location := locationFrom(req.Entities, req.Context)

	switch {
	case condition != "" && location != "":
		return h.search(ctx, req, condition, location)
	case location != "":
		return h.askForCondition(ctx, req, location)
	case condition != "":
		return h.askForLocation(req, condition)
	default:
		resp := Response{Success: true, Message: clarificationMessage(true, true, req.Context)}
		resp.updates()["state_data"] = map[string]any{"awaiting_trial_criteria": true}
		resp.NextState = req.States.Current()
		return resp
	}
}

func (h *TrialSearchHandler) search(ctx context.Context, req Request, condition, location string) Response {
	found, err := h.searcher.SearchByConditionAndLocation(ctx, condition, location, searchLimit)
	if err != nil {
		h.logger.Error("trial search failed", "error", err, "condition", condition, "location", location)
		return Response{
			Success: false,
			Message: "I'm having trouble searching for trials right now. Please try again in a moment.",
			Err:     err.Error(),
		}
	}

	resp := Response{Success: true}
	resp.updates()["focus_condition"] = condition
	resp.updates()["focus_location"] = location

	if len(found) == 0 {
		resp.Message = h.fallback.SuggestAlternatives(ctx, condition, location)
		resp.NextState = req.States.Current()
		resp.meta()["result_count"] = 0
		return resp
	}

	resp.Message = formatTrialResults(found, condition, location)
	resp.updates()["last_shown_trials"] = summarize(found, 3)
	resp.NextState = moveTo(req.States, conversation.StateTrialsShown, "trials presented")
	resp.QuickReplies = []string{"Check my eligibility", "More details", "Search another location"}
	resp.meta()["result_count"] = len(found)
	return resp
}

func (h *TrialSearchHandler) askForCondition(ctx context.Context, req Request, location string) Response {
	resp := Response{Success: true}
	resp.updates()["focus_location"] = location

	conditions, err := h.searcher.ConditionsInLocation(ctx, location, searchLimit)
	if err != nil {
		h.logger.Warn("condition lookup failed", "error", err, "location", location)
	}
	if len(conditions) == 0 {
		resp.Message = fmt.Sprintf("I couldn't find any active trials in %s right now. Is there another location you'd like me to check?", location)
		resp.NextState = moveTo(req.States, conversation.StateAwaitingLocation, "no trials at location")
		return resp
	}

	var b strings.Builder
	fmt.Fprintf(&b, "We have trials in %s for the following conditions:\n\n", location)
	for _, c := range conditions {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nWhich condition are you interested in?")
	resp.Message = b.String()
	resp.NextState = moveTo(req.States, conversation.StateAwaitingCondition, "condition needed for search")
	resp.QuickReplies = conditions
	return resp
}

func (h *TrialSearchHandler) askForLocation(req Request, condition string) Response {
	resp := Response{Success: true}
	resp.updates()["focus_condition"] = condition
	resp.Message = fmt.Sprintf("I can help you find %s trials. What city or area are you located in?", condition)
	resp.NextState = moveTo(req.States, conversation.StateAwaitingLocation, "location needed for search")
	return resp
}
