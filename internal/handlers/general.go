package handlers

import (
	"context"
	"fmt"

	"github.com/trialscout/trialchat/internal/conversation"
	"github.com/trialscout/trialchat/internal/llm"
	"github.com/trialscout/trialchat/pkg/logging"
)

// GeneralHandler is the catch-all. It routes late-arriving search criteria,
// answers expressions of interest, and hands everything else to the model
// with a canned fallback when the model is unavailable.
type GeneralHandler struct {
	responder *llm.Responder
	logger    *logging.Logger
}

var _ Handler = (*GeneralHandler)(nil)

// NewGeneralHandler wires the handler to the responder; a nil responder
// means every free-form turn gets the canned fallback.
func NewGeneralHandler(responder *llm.Responder, logger *logging.Logger) *GeneralHandler {
	return &GeneralHandler{responder: responder, logger: logger}
}

// CanHandle always accepts; register this handler last.
func (h *GeneralHandler) CanHandle(conversation.DetectedIntent, *conversation.Context) bool {
	return true
}

func (h *GeneralHandler) Handle(ctx context.Context, req Request) Response {
	if req.Context.StateDataBool("awaiting_trial_criteria") {
		if resp, ok := h.routeLateCriteria(req); ok {
			return resp
		}
	}
	if req.Intent.Type == conversation.IntentTrialInterest {
		return h.trialInterest(req)
	}
	return h.freeform(ctx, req)
}

// routeLateCriteria picks a condition out of a free-form reply to "what
// condition and where", which the classifier often files as a general query.
func (h *GeneralHandler) routeLateCriteria(req Request) (Response, bool) {
	condition := conversation.DetectCondition(req.Message)
	if condition == "" {
		return Response{}, false
	}
	resp := Response{Success: true}
	resp.updates()["focus_condition"] = condition
	resp.updates()["state_data"] = map[string]any{"awaiting_trial_criteria": false}
	resp.Message = fmt.Sprintf("Got it, %s. What city or area are you located in?", condition)
	resp.NextState = moveTo(req.States, conversation.StateAwaitingLocation, "location needed for search")
	return resp, true
}

// trialInterest nudges an interested user toward whichever criterion is
// still missing.
func (h *GeneralHandler) trialInterest(req Request) Response {
	condition := conditionFrom(req.Entities, req.Context)
	location := locationFrom(req.Entities, req.Context)

	resp := Response{Success: true}
	switch {
	case condition != "" && location != "":
		resp.Message = fmt.Sprintf("Great! I can look for %s trials near %s, or check your eligibility right away. Which would you like?", condition, location)
		resp.NextState = req.States.Current()
		resp.QuickReplies = []string{"Find trials", "Check my eligibility"}
	case condition != "":
		resp.updates()["focus_condition"] = condition
		resp.Message = fmt.Sprintf("Great! To find %s trials near you, what city or area are you located in?", condition)
		resp.NextState = moveTo(req.States, conversation.StateAwaitingLocation, "location needed for search")
	default:
		resp.Message = "That's great to hear! What condition are you interested in, and where are you located?"
		resp.updates()["state_data"] = map[string]any{"awaiting_trial_criteria": true}
		resp.NextState = req.States.Current()
	}
	return resp
}

// freeform asks the model, degrading to the canned reply on any failure.
func (h *GeneralHandler) freeform(ctx context.Context, req Request) Response {
	tc := llm.TurnContext{
		FocusCondition:     req.Context.FocusCondition,
		FocusLocation:      req.Context.FocusLocation,
		State:              string(req.States.Current()),
		PrescreeningActive: req.States.IsInPrescreening(),
		History:            historyMessages(req.Context, 6),
	}

	reply, err := h.responder.GenerateReply(ctx, req.Message, tc)
	if err != nil {
		h.logger.Warn("model reply unavailable", "error", err)
		reply = llm.FallbackReply
	}

	resp := Response{Success: true, Message: reply, NextState: req.States.Current()}
	if req.States.Current() == conversation.StateIdle {
		resp.QuickReplies = []string{"Find trials near me", "Check my eligibility"}
	}
	return resp
}

// historyMessages converts the tail of the stored history into chat turns.
func historyMessages(c *conversation.Context, maxTurns int) []llm.ChatMessage {
	history := c.History
	if len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	out := make([]llm.ChatMessage, 0, len(history)*2)
	for _, h := range history {
		if h.UserMessage != "" {
			out = append(out, llm.ChatMessage{Role: llm.ChatRoleUser, Content: h.UserMessage})
		}
		if h.BotResponse != "" {
			out = append(out, llm.ChatMessage{Role: llm.ChatRoleAssistant, Content: h.BotResponse})
		}
	}
	return out
}
