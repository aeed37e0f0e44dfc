package conversation

// Transition condition names referenced by flow rules.
const (
	CondHasTrialOrContext    = "has_trial_or_context"
	CondPrescreeningComplete = "prescreening_complete"
	CondLocationProvided     = "location_provided"
	CondConditionProvided    = "condition_provided"
)

// CheckTransitionCondition evaluates a named precondition against the
// context. Unknown condition names pass so a stale rule cannot wedge a
// session.
func CheckTransitionCondition(condition string, ctx *Context) bool {
	if ctx == nil {
		return false
	}
	switch condition {
	case CondHasTrialOrContext:
		return ctx.TrialID != "" || (ctx.FocusCondition != "" && ctx.FocusLocation != "")
	case CondPrescreeningComplete:
		_, hasAge := ctx.CollectedData["age"]
		_, hasDiagnosis := ctx.CollectedData["diagnosis_confirmed"]
		return hasAge && hasDiagnosis && len(ctx.RemainingQuestions) == 0
	case CondLocationProvided:
		return ctx.FocusLocation != ""
	case CondConditionProvided:
		return ctx.FocusCondition != ""
	}
	return true
}

type transitionKey struct {
	from State
	to   State
}

var transitionReasons = map[transitionKey]string{
	{StateIdle, StatePrescreeningActive}:                "starting prescreening flow",
	{StateIdle, StateAwaitingLocation}:                  "requesting location for trial search",
	{StateIdle, StateAwaitingCondition}:                 "requesting condition for trial search",
	{StatePrescreeningActive, StateAwaitingAge}:         "collecting age for eligibility check",
	{StatePrescreeningActive, StateAwaitingDiagnosis}:   "confirming diagnosis for eligibility",
	{StatePrescreeningActive, StateCompleted}:           "prescreening questions completed",
	{StateAwaitingLocation, StatePrescreeningActive}:    "location provided, starting prescreening",
	{StateAwaitingCondition, StatePrescreeningActive}:   "condition provided, starting prescreening",
}

// TransitionReason gives a short explanation for a transition, for the logs.
func TransitionReason(from, to State, intent IntentType) string {
	if reason, ok := transitionReasons[transitionKey{from, to}]; ok {
		return reason
	}
	if intent != "" {
		return "transition based on " + string(intent)
	}
	return "transition based on user action"
}

var abandonmentMessages = map[State]string{
	StatePrescreeningActive:  "I'll pause the eligibility check. Let me know if you'd like to continue later.",
	StateAwaitingAge:         "No problem, we can check your eligibility another time.",
	StateAwaitingDiagnosis:   "I understand. Feel free to ask me anything else about clinical trials.",
	StateAwaitingMedications: "Okay, let's pause here. I'm happy to help with other questions.",
	StateAwaitingLocation:    "Sure, let me know if you'd like to search for trials later.",
	StateAwaitingCondition:   "No problem. I'm here whenever you'd like to explore clinical trials.",
}

// AbandonmentMessage is what we say when the user walks away from a flow.
func AbandonmentMessage(from State) string {
	if msg, ok := abandonmentMessages[from]; ok {
		return msg
	}
	return "I'm here to help whenever you're ready to continue."
}

var contextPreservingTransitions = map[transitionKey]struct{}{
	{StatePrescreeningActive, StateAwaitingAge}:         {},
	{StatePrescreeningActive, StateAwaitingDiagnosis}:   {},
	{StatePrescreeningActive, StateAwaitingMedications}: {},
	{StatePrescreeningActive, StateAwaitingFlares}:      {},
	{StateAwaitingAge, StatePrescreeningActive}:         {},
	{StateAwaitingDiagnosis, StatePrescreeningActive}:   {},
	{StateAwaitingMedications, StatePrescreeningActive}: {},
	{StateAwaitingFlares, StatePrescreeningActive}:      {},
}

// RequiresContextPreservation reports whether collected answers must survive
// the transition.
func RequiresContextPreservation(from, to State) bool {
	_, ok := contextPreservingTransitions[transitionKey{from, to}]
	return ok
}

// RecoveryState picks where to land after an error of the given kind.
func RecoveryState(current State, errorType string) State {
	switch errorType {
	case "invalid_input":
		return current
	case "missing_context", "system_error", "timeout":
		return StateIdle
	}
	return StateIdle
}

// CanResumeFromState reports whether a stored session in this state can pick
// up where it left off.
func CanResumeFromState(s State) bool {
	switch s {
	case StatePrescreeningActive, StateAwaitingAge, StateAwaitingDiagnosis,
		StateAwaitingMedications, StateAwaitingFlares,
		StateAwaitingLocation, StateAwaitingCondition:
		return true
	}
	return false
}
