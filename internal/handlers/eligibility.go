package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/trialscout/trialchat/internal/conversation"
	"github.com/trialscout/trialchat/internal/trials"
	"github.com/trialscout/trialchat/pkg/logging"
)

// EligibilityHandler owns the entry points into the eligibility flow: it
// resolves which trial the user means, then hands the session to the
// prescreening questionnaire.
type EligibilityHandler struct {
	searcher trials.Searcher
	fallback *trials.Fallback
	logger   *logging.Logger
}

var _ Handler = (*EligibilityHandler)(nil)

// NewEligibilityHandler wires the handler to the trial store.
func NewEligibilityHandler(searcher trials.Searcher, fallback *trials.Fallback, logger *logging.Logger) *EligibilityHandler {
	return &EligibilityHandler{searcher: searcher, fallback: fallback, logger: logger}
}

func (h *EligibilityHandler) CanHandle(intent conversation.DetectedIntent, convCtx *conversation.Context) bool {
	switch intent.Type {
	case conversation.IntentEligibility, conversation.IntentEligibilitySpecificTrial,
		conversation.IntentEligibilityForShownTrial, conversation.IntentEligibilityFollowup:
		return true
	case conversation.IntentConditionAnswer:
		return convCtx != nil && convCtx.StateDataBool("awaiting_condition_for_eligibility")
	}
	return false
}

func (h *EligibilityHandler) Handle(ctx context.Context, req Request) Response {
	switch req.Intent.Type {
	case conversation.IntentEligibilityForShownTrial:
		return h.forShownTrial(ctx, req)
	case conversation.IntentEligibilityFollowup:
		return h.followup(req)
	case conversation.IntentConditionAnswer:
		return h.withCondition(ctx, req, conditionFrom(req.Entities, req.Context))
	default:
		return h.general(ctx, req)
	}
}

// general covers "am I eligible" both with and without a named condition.
func (h *EligibilityHandler) general(ctx context.Context, req Request) Response {
	condition := conditionFrom(req.Entities, req.Context)
	if condition == "" {
		resp := Response{Success: true}
		resp.Message = "I can check your eligibility for a clinical trial. What condition are you interested in?"
		resp.updates()["state_data"] = map[string]any{"awaiting_condition_for_eligibility": true}
		resp.NextState = moveTo(req.States, conversation.StateAwaitingCondition, "condition needed for eligibility")
		return resp
	}
	return h.withCondition(ctx, req, condition)
}

// withCondition resolves a trial for the condition and starts prescreening,
// collecting the location first when it is missing.
func (h *EligibilityHandler) withCondition(ctx context.Context, req Request, condition string) Response {
	location := locationFrom(req.Entities, req.Context)
	if location == "" {
		resp := Response{Success: true}
		resp.Message = fmt.Sprintf("I can check your eligibility for %s trials. What's your location, so I can find the trial nearest you?", condition)
		resp.updates()["focus_condition"] = condition
		resp.updates()["state_data"] = map[string]any{
			"awaiting_prescreening":              true,
			"awaiting_condition_for_eligibility": false,
		}
		resp.NextState = moveTo(req.States, conversation.StateAwaitingLocation, "location needed for eligibility")
		return resp
	}

	found, err := h.searcher.SearchByConditionAndLocation(ctx, condition, location, 1)
	if err != nil {
		h.logger.Error("eligibility trial lookup failed", "error", err, "condition", condition)
		return Response{
			Success: false,
			Message: "I'm having trouble looking up trials right now. Please try again in a moment.",
			Err:     err.Error(),
		}
	}
	if len(found) == 0 {
		resp := Response{Success: true, Message: h.fallback.SuggestAlternatives(ctx, condition, location)}
		resp.updates()["focus_condition"] = condition
		resp.updates()["focus_location"] = location
		resp.NextState = req.States.Current()
		return resp
	}
	return startPrescreeningForTrial(req, found[0])
}

// forShownTrial starts prescreening against a trial already on screen.
func (h *EligibilityHandler) forShownTrial(ctx context.Context, req Request) Response {
	shown := req.Context.LastShownTrials
	if len(shown) == 0 {
		return h.general(ctx, req)
	}

	pick := shown[len(shown)-1]
	if condition := conditionFrom(req.Entities, req.Context); condition != "" {
		for _, t := range shown {
			if strings.EqualFold(t.Condition, condition) {
				pick = t
				break
			}
		}
	}
	return startPrescreeningForTrial(req, trials.Trial{
		ID:           pick.ID,
		Name:         pick.Name,
		Conditions:   pick.Condition,
		SiteLocation: pick.Location,
	})
}

// followup answers "what would I need" style questions about the screening.
func (h *EligibilityHandler) followup(req Request) Response {
	condition := conditionFrom(nil, req.Context)
	subject := "our trials"
	if condition != "" {
		subject = fmt.Sprintf("the %s trial", condition)
	}
	resp := Response{Success: true}
	resp.Message = fmt.Sprintf("Eligibility for %s is based on a few quick questions about your age, diagnosis, and symptom history. Would you like to go through them now?", subject)
	moveTo(req.States, conversation.StateTrialsShown, "eligibility context anchored")
	resp.NextState = moveTo(req.States, conversation.StateAwaitingConfirmation, "offered eligibility check")
	resp.QuickReplies = []string{"Yes, check my eligibility", "Not right now"}
	return resp
}

// startPrescreeningForTrial pins the trial on the session and asks the first
// questionnaire question.
func startPrescreeningForTrial(req Request, trial trials.Trial) Response {
	resp := Response{Success: true}
	u := resp.updates()
	u["trial_id"] = trial.ID
	u["trial_name"] = trial.Name
	if trial.Conditions != "" {
		u["focus_condition"] = trial.Conditions
	}
	if trial.SiteLocation != "" {
		u["focus_location"] = trial.SiteLocation
	}
	u["remaining_questions"] = remainingAfter(prescreeningQuestionKeys, "age")
	u["current_question_key"] = "age"
	u["collected_data"] = map[string]any{}
	u["state_data"] = map[string]any{
		"awaiting_prescreening":              false,
		"awaiting_condition_for_eligibility": false,
	}

	moveTo(req.States, conversation.StatePrescreeningActive, "prescreening started")
	resp.NextState = moveTo(req.States, conversation.StateForQuestion("age", ""), "first question asked")

	condition := trial.Conditions
	if condition == "" {
		condition = conditionFrom(nil, req.Context)
	}
	label := "this"
	if condition != "" {
		label = condition
	}
	resp.Message = fmt.Sprintf("Great! Let's check your eligibility for the %s trial. I'll ask you a few quick questions.\n\n%s", label, questionText("age", condition))
	return resp
}
