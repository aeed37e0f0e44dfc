package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/trialscout/trialchat/internal/conversation"
	"github.com/trialscout/trialchat/pkg/logging"
)

// prescreeningQuestionKeys is the questionnaire in asking order. The keys
// double as collected_data keys and route to awaiting states through
// StateForQuestion.
var prescreeningQuestionKeys = []string{"age", "diagnosis_confirmed", "flare_frequency"}

const minFlareCount = 2

// remainingAfter returns the questions still open once answered is done.
func remainingAfter(keys []string, answered string) []string {
	out := make([]string, 0, len(keys))
	skip := true
	for _, k := range keys {
		if skip {
			if k == answered {
				skip = false
			}
			continue
		}
		out = append(out, k)
	}
	return out
}

// questionText phrases a questionnaire question, personalized to the
// condition when one is known.
func questionText(key, condition string) string {
	subject := "this condition"
	if condition != "" {
		subject = condition
	}
	switch key {
	case "age":
		return "What is your age?"
	case "diagnosis_confirmed":
		return fmt.Sprintf("Have you been diagnosed with %s by a physician?", subject)
	case "medications":
		return fmt.Sprintf("Are you currently taking any medications for %s?", subject)
	case "flare_frequency":
		return "How many flare-ups have you experienced in the past year?"
	}
	return "Could you tell me a bit more?"
}

var (
	ageDigitsRE = regexp.MustCompile(`\b(\d{1,3})\b`)
	yesRE       = regexp.MustCompile(`(?i)^\s*(yes|yeah|yep|yea|sure|correct|right|i have|i do|absolutely|definitely)\b`)
	noRE        = regexp.MustCompile(`(?i)^\s*(no|nope|nah|never|i have ?n.?t|i do ?n.?t|not yet)\b`)
	zeroWordRE  = regexp.MustCompile(`(?i)\b(none|never|zero)\b`)
	onceRE      = regexp.MustCompile(`(?i)\bonce\b`)
	twiceRE     = regexp.MustCompile(`(?i)\btwice\b`)
)

// PrescreeningHandler walks the questionnaire: one answer per turn, with a
// hard stop the moment an answer disqualifies. It also owns the yes/no
// confirmation before the questionnaire and the wrap-up after it.
type PrescreeningHandler struct {
	logger *logging.Logger
}

var _ Handler = (*PrescreeningHandler)(nil)

// NewPrescreeningHandler returns the questionnaire handler.
func NewPrescreeningHandler(logger *logging.Logger) *PrescreeningHandler {
	return &PrescreeningHandler{logger: logger}
}

func (h *PrescreeningHandler) CanHandle(intent conversation.DetectedIntent, convCtx *conversation.Context) bool {
	if convCtx == nil {
		return false
	}
	switch convCtx.State {
	case conversation.StateAwaitingAge, conversation.StateAwaitingDiagnosis,
		conversation.StateAwaitingMedications, conversation.StateAwaitingFlares,
		conversation.StatePrescreeningActive:
		return conversation.IsAnswerIntent(intent.Type) ||
			intent.Type == conversation.IntentGeneralQuery
	case conversation.StateAwaitingConfirmation, conversation.StateCompleted:
		return intent.Type == conversation.IntentYesNoAnswer
	}
	return false
}

// Handle dispatches on the context's state rather than the live machine:
// the flow controller may already have advanced the machine for this turn,
// and the question being answered is the one that was pending when the
// message arrived.
func (h *PrescreeningHandler) Handle(ctx context.Context, req Request) Response {
	switch req.Context.State {
	case conversation.StateAwaitingAge:
		return h.handleAge(req)
	case conversation.StateAwaitingDiagnosis:
		return h.handleDiagnosis(req)
	case conversation.StateAwaitingMedications:
		return h.handleMedications(req)
	case conversation.StateAwaitingFlares:
		return h.handleFlares(req)
	case conversation.StateAwaitingConfirmation:
		return h.handleConfirmation(req)
	case conversation.StateCompleted:
		return h.handleCompleted(req)
	default:
		return h.clarify(req, req.Context.CurrentQuestionKey)
	}
}

func (h *PrescreeningHandler) handleAge(req Request) Response {
	age, ok := ageFrom(req)
	if !ok {
		return h.clarify(req, "age")
	}
	if age < 18 {
		resp := h.disqualify(req, "I appreciate your interest, but participants must be at least 18 years old to join this trial. Thank you for your time!")
		resp.updates()["collected_data"] = map[string]any{"age": age, "eligible": false}
		return resp
	}
	return h.advance(req, "age", age)
}

func (h *PrescreeningHandler) handleDiagnosis(req Request) Response {
	confirmed, ok := boolFrom(req)
	if !ok {
		return h.clarify(req, "diagnosis_confirmed")
	}
	if !confirmed {
		condition := conditionFrom(nil, req.Context)
		subject := "the condition"
		if condition != "" {
			subject = condition
		}
		resp := h.disqualify(req, fmt.Sprintf("This trial requires a physician diagnosis of %s. I'd recommend speaking with your doctor first. Thank you for your interest!", subject))
		resp.updates()["collected_data"] = map[string]any{"diagnosis_confirmed": false, "eligible": false}
		return resp
	}
	return h.advance(req, "diagnosis_confirmed", true)
}

func (h *PrescreeningHandler) handleMedications(req Request) Response {
	taking, ok := boolFrom(req)
	if !ok {
		return h.clarify(req, "medications")
	}
	return h.advance(req, "medications", taking)
}

func (h *PrescreeningHandler) handleFlares(req Request) Response {
	count, ok := numberFrom(req)
	if !ok {
		return h.clarify(req, "flare_frequency")
	}
	return h.complete(req, count)
}

// handleConfirmation reacts to the yes/no after "would you like to check
// your eligibility".
func (h *PrescreeningHandler) handleConfirmation(req Request) Response {
	answer, ok := boolFrom(req)
	if !ok {
		return Response{
			Success: true,
			Message: "Would you like to check your eligibility for this trial? A simple yes or no works.",
			NextState: req.States.Current(),
		}
	}
	if !answer {
		resp := Response{Success: true}
		resp.Message = "No problem! Let me know if you'd like to search for other trials or have any questions."
		resp.NextState = moveTo(req.States, conversation.StateIdle, "eligibility check declined")
		return resp
	}

	trial := trialFromContext(req.Context)
	return startPrescreeningForTrial(req, trial)
}

// handleCompleted reacts to yes/no after the eligibility verdict.
func (h *PrescreeningHandler) handleCompleted(req Request) Response {
	answer, ok := boolFrom(req)
	resp := Response{Success: true, NextState: req.States.Current()}
	switch {
	case ok && answer:
		resp.Message = "Wonderful! Our team will reach out to schedule a screening visit and answer any questions you have. In the meantime, feel free to ask me anything else about the trial."
	case ok && !answer:
		resp.Message = "Thanks for chatting with me today! If you change your mind or want to look at other trials, I'm always here."
		resp.NextState = moveTo(req.States, conversation.StateIdle, "conversation wrapped up")
	default:
		resp.Message = "Would you like to hear about next steps? A simple yes or no works."
	}
	return resp
}

// advance records the answer and asks the next open question, completing the
// questionnaire when none remain. RemainingQuestions holds the questions
// after the current one; the answered key is only trimmed defensively.
func (h *PrescreeningHandler) advance(req Request, key string, value any) Response {
	remaining := append([]string(nil), req.Context.RemainingQuestions...)
	if len(remaining) == 0 {
		remaining = remainingAfter(prescreeningQuestionKeys, key)
	}
	if len(remaining) > 0 && remaining[0] == key {
		remaining = remaining[1:]
	}

	resp := Response{Success: true}
	resp.updates()["collected_data"] = map[string]any{key: value}

	if len(remaining) == 0 {
		return h.completeFrom(req, resp)
	}

	next := remaining[0]
	resp.updates()["remaining_questions"] = remaining[1:]
	resp.updates()["current_question_key"] = next
	resp.Message = questionText(next, conditionFrom(nil, req.Context))

	// Awaiting states only connect through the hub when questions are
	// skipped, so hop via prescreening_active when there is no direct edge.
	target := conversation.StateForQuestion(next, "")
	if req.States.Current() != target && !req.States.CanTransitionTo(target) {
		moveTo(req.States, conversation.StatePrescreeningActive, "questionnaire step")
	}
	resp.NextState = moveTo(req.States, target, "next question asked")
	return resp
}

// complete finishes the questionnaire on the final flare answer.
func (h *PrescreeningHandler) complete(req Request, flareCount int) Response {
	resp := Response{Success: true}
	resp.updates()["collected_data"] = map[string]any{"flare_frequency": flareCount}
	return h.finish(req, resp, flareCount, true)
}

// completeFrom finishes when advance drains the question list without the
// flares question having been asked.
func (h *PrescreeningHandler) completeFrom(req Request, resp Response) Response {
	count, haveCount := collectedInt(req.Context, "flare_frequency")
	return h.finish(req, resp, count, haveCount)
}

func (h *PrescreeningHandler) finish(req Request, resp Response, flareCount int, haveFlares bool) Response {
	age, _ := collectedInt(req.Context, "age")
	diagnosis := collectedBool(req.Context, "diagnosis_confirmed")

	var reasons []string
	if age < 18 {
		reasons = append(reasons, "Must be 18 years or older")
	}
	if !diagnosis {
		reasons = append(reasons, "Must have a physician diagnosis of the condition")
	}
	if haveFlares && flareCount < minFlareCount {
		reasons = append(reasons, fmt.Sprintf("Must have had at least %d flare-ups in the past year", minFlareCount))
	}
	eligible := len(reasons) == 0

	u := resp.updates()
	merged, _ := u["collected_data"].(map[string]any)
	if merged == nil {
		merged = map[string]any{}
		u["collected_data"] = merged
	}
	merged["eligible"] = eligible
	u["remaining_questions"] = []string{}
	u["current_question_key"] = ""
	resp.meta()["eligible"] = eligible

	condition := conditionFrom(nil, req.Context)
	label := "this"
	if condition != "" {
		label = condition
	}
	if eligible {
		resp.Message = fmt.Sprintf("Great news! Based on your answers, you appear to be eligible for the %s trial. Would you like to learn about next steps?", label)
		resp.QuickReplies = []string{"Yes, tell me more", "Not right now"}
	} else {
		var b strings.Builder
		b.WriteString("Based on your answers, you may not qualify for this trial:\n")
		for _, r := range reasons {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\nWould you like me to look for other trials that might be a better fit?")
		resp.Message = b.String()
	}

	resp.NextState = moveTo(req.States, conversation.StateCompleted, "prescreening completed")
	h.logger.Info("prescreening completed", "eligible", eligible, "reasons", len(reasons))
	return resp
}

// disqualify ends the questionnaire early on a hard-stop answer.
func (h *PrescreeningHandler) disqualify(req Request, message string) Response {
	resp := Response{Success: true, Message: message}
	u := resp.updates()
	u["remaining_questions"] = []string{}
	u["current_question_key"] = ""
	resp.meta()["eligible"] = false
	resp.NextState = moveTo(req.States, conversation.StateCompleted, "disqualified")
	return resp
}

// clarify re-asks the pending question when the answer did not parse.
func (h *PrescreeningHandler) clarify(req Request, key string) Response {
	var hint string
	switch key {
	case "age":
		hint = "Could you tell me your age as a number?"
	case "diagnosis_confirmed", "medications":
		hint = "A simple yes or no works best here."
	case "flare_frequency":
		hint = "Roughly how many? A number is all I need."
	default:
		hint = "I didn't quite catch that."
	}
	return Response{
		Success:   true,
		Message:   fmt.Sprintf("%s %s", hint, questionText(key, conditionFrom(nil, req.Context))),
		NextState: req.States.Current(),
	}
}

func ageFrom(req Request) (int, bool) {
	if e, ok := req.Entities[conversation.EntityAge]; ok {
		if n, err := strconv.Atoi(e.Normalized); err == nil {
			return n, true
		}
	}
	if m := ageDigitsRE.FindString(req.Message); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n > 0 && n < 120 {
			return n, true
		}
	}
	return 0, false
}

func boolFrom(req Request) (bool, bool) {
	if e, ok := req.Entities[conversation.EntityBoolean]; ok {
		return e.Normalized == "true", true
	}
	if yesRE.MatchString(req.Message) {
		return true, true
	}
	if noRE.MatchString(req.Message) {
		return false, true
	}
	return false, false
}

func numberFrom(req Request) (int, bool) {
	if e, ok := req.Entities[conversation.EntityNumber]; ok {
		if n, err := strconv.Atoi(e.Normalized); err == nil {
			return n, true
		}
	}
	if m := ageDigitsRE.FindString(req.Message); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n, true
		}
	}
	switch {
	case zeroWordRE.MatchString(req.Message):
		return 0, true
	case onceRE.MatchString(req.Message):
		return 1, true
	case twiceRE.MatchString(req.Message):
		return 2, true
	}
	return 0, false
}

func collectedInt(c *conversation.Context, key string) (int, bool) {
	switch v := c.CollectedData[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

func collectedBool(c *conversation.Context, key string) bool {
	switch v := c.CollectedData[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}
