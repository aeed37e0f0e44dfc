package conversation

import (
	"strings"

	"github.com/trialscout/trialchat/pkg/logging"
)

// Recovery strategy names reported by FlowResult when an intent arrives in a
// state that did not expect it.
const (
	RecoveryContextSwitch  = "context_switch"
	RecoveryAnswerRouting  = "answer_routing"
	RecoveryAlwaysAllow    = "always_allow"
	RecoveryMonitoredAllow = "monitored_allow"
)

// Flow action types attached to FlowResult.
const (
	ActionStartPrescreening   = "start_prescreening"
	ActionEvaluateEligibility = "evaluate_eligibility"
	ActionShowAbandonment     = "show_abandonment_message"
	ActionClearAwaitingFlags  = "clear_awaiting_flags"
)

// FlowAction is one side effect the pipeline should perform alongside a
// transition.
type FlowAction struct {
	Type    string
	Message string
	Data    map[string]any
}

// FlowResult is the outcome of routing one intent through the state machine.
type FlowResult struct {
	Success          bool
	PreviousState    State
	CurrentState     State
	AttemptedState   State
	TransitionReason string
	NoTransition     bool
	RecoveryStrategy string
	AllowIntent      bool
	Actions          []FlowAction
	Err              string
}

// FlowController routes classified intents through the state machine. It
// decides the next state, performs the transition, and reports the side
// effects the handler layer should carry out.
type FlowController struct {
	states *StateManager
	logger *logging.Logger
}

// NewFlowController wraps a state manager.
func NewFlowController(states *StateManager, logger *logging.Logger) *FlowController {
	if states == nil {
		states = NewStateManager(logger)
	}
	return &FlowController{states: states, logger: logger}
}

// States exposes the underlying state manager.
func (f *FlowController) States() *StateManager {
	return f.states
}

// HandleIntent determines and applies the state transition for an intent.
// Every path returns AllowIntent true or a failed transition; the flow never
// swallows a user turn.
func (f *FlowController) HandleIntent(intent IntentType, ctx *Context) FlowResult {
	current := f.states.Current()

	if !f.states.IsIntentValid(intent) {
		return f.recoverUnexpectedIntent(intent, current)
	}

	next, ok := f.determineNextState(intent, ctx)
	if !ok || next == current {
		return FlowResult{
			Success:      true,
			CurrentState: current,
			NoTransition: true,
			AllowIntent:  true,
		}
	}

	reason := TransitionReason(current, next, intent)
	if !f.states.TransitionTo(next, reason) {
		return FlowResult{
			Success:        false,
			CurrentState:   current,
			AttemptedState: next,
			AllowIntent:    true,
			Err:            "invalid state transition",
		}
	}

	return FlowResult{
		Success:          true,
		PreviousState:    current,
		CurrentState:     next,
		TransitionReason: reason,
		AllowIntent:      true,
		Actions:          f.transitionActions(current, next, ctx),
	}
}

func (f *FlowController) determineNextState(intent IntentType, ctx *Context) (State, bool) {
	current := f.states.Current()

	switch current {
	case StateIdle:
		switch intent {
		case IntentEligibility, IntentEligibilitySpecificTrial:
			return StatePrescreeningActive, true
		case IntentTrialSearch:
			return f.searchNextState(ctx), true
		case IntentPersonalCondition:
			return StateAwaitingLocation, true
		case IntentLocationSearch:
			return StateAwaitingCondition, true
		}
	case StatePrescreeningActive:
		switch intent {
		case IntentAgeAnswer, IntentYesNoAnswer, IntentNumberAnswer:
			return f.nextPrescreeningState(ctx), true
		}
	case StateAwaitingAge:
		if intent == IntentAgeAnswer {
			return StatePrescreeningActive, true
		}
	case StateAwaitingDiagnosis:
		if intent == IntentYesNoAnswer {
			return StatePrescreeningActive, true
		}
	case StateAwaitingMedications:
		if intent == IntentYesNoAnswer || intent == IntentMedicationAnswer {
			return StatePrescreeningActive, true
		}
	case StateAwaitingFlares:
		if intent == IntentNumberAnswer {
			return StatePrescreeningActive, true
		}
	case StateAwaitingLocation:
		if intent == IntentLocationAnswer {
			return f.afterLocationState(ctx), true
		}
	case StateAwaitingCondition:
		if intent == IntentConditionAnswer {
			return f.afterConditionState(ctx), true
		}
	case StateCompleted:
		switch intent {
		case IntentEligibility:
			return StatePrescreeningActive, true
		case IntentTrialSearch:
			return f.searchNextState(ctx), true
		}
	}

	return "", false
}

func (f *FlowController) searchNextState(ctx *Context) State {
	hasLocation := ctx != nil && ctx.FocusLocation != ""
	hasCondition := ctx != nil && ctx.FocusCondition != ""

	switch {
	case !hasLocation:
		return StateAwaitingLocation
	case !hasCondition:
		return StateAwaitingCondition
	default:
		// Both present, the search can run without a detour.
		return f.states.Current()
	}
}

func (f *FlowController) afterLocationState(ctx *Context) State {
	if ctx != nil && ctx.StateDataBool("awaiting_prescreening") {
		return StatePrescreeningActive
	}
	if ctx == nil || ctx.FocusCondition == "" {
		return StateAwaitingCondition
	}
	return StateIdle
}

func (f *FlowController) afterConditionState(ctx *Context) State {
	if ctx != nil && ctx.StateDataBool("awaiting_prescreening") {
		return StatePrescreeningActive
	}
	if ctx == nil || ctx.FocusLocation == "" {
		return StateAwaitingLocation
	}
	return StateIdle
}

// nextPrescreeningState advances through the remaining question queue, or
// completes when it is exhausted.
func (f *FlowController) nextPrescreeningState(ctx *Context) State {
	if ctx == nil || len(ctx.RemainingQuestions) == 0 {
		return StateCompleted
	}

	next := ctx.RemainingQuestions[0]
	for _, qs := range []struct {
		fragment string
		state    State
	}{
		{"age", StateAwaitingAge},
		{"diagnosis", StateAwaitingDiagnosis},
		{"medications", StateAwaitingMedications},
		{"flare", StateAwaitingFlares},
	} {
		if strings.Contains(next, qs.fragment) {
			return qs.state
		}
	}
	return StatePrescreeningActive
}

func (f *FlowController) transitionActions(from, to State, ctx *Context) []FlowAction {
	var actions []FlowAction

	switch {
	case to == StatePrescreeningActive && from != to:
		data := map[string]any{}
		if ctx != nil {
			data["trial_id"] = ctx.TrialID
			data["condition"] = ctx.FocusCondition
			data["location"] = ctx.FocusLocation
		}
		actions = append(actions, FlowAction{Type: ActionStartPrescreening, Data: data})
	case to == StateCompleted && isPrescreeningState(from):
		data := map[string]any{}
		if ctx != nil {
			for k, v := range ctx.CollectedData {
				data[k] = v
			}
		}
		actions = append(actions, FlowAction{Type: ActionEvaluateEligibility, Data: data})
	case to == StateIdle && (from == StatePrescreeningActive || from == StateAwaitingAge || from == StateAwaitingDiagnosis):
		actions = append(actions, FlowAction{
			Type:    ActionShowAbandonment,
			Message: AbandonmentMessage(from),
		})
	}

	return actions
}

func (f *FlowController) recoverUnexpectedIntent(intent IntentType, current State) FlowResult {
	if f.logger != nil {
		f.logger.Info("unexpected intent for state",
			"intent", string(intent), "state", string(current))
	}

	if IsNewFlowIntent(intent) {
		if f.states.IsAwaitingInput() && intent == IntentEligibility {
			return FlowResult{
				Success:          true,
				CurrentState:     current,
				RecoveryStrategy: RecoveryContextSwitch,
				AllowIntent:      true,
				Actions:          []FlowAction{{Type: ActionClearAwaitingFlags}},
			}
		}
	}

	if IsAnswerIntent(intent) && f.states.IsAwaitingInput() {
		return FlowResult{
			Success:          true,
			CurrentState:     current,
			RecoveryStrategy: RecoveryAnswerRouting,
			AllowIntent:      true,
		}
	}

	if intent == IntentGeneralQuery || intent == IntentTrialInterest {
		return FlowResult{
			Success:          true,
			CurrentState:     current,
			RecoveryStrategy: RecoveryAlwaysAllow,
			AllowIntent:      true,
		}
	}

	return FlowResult{
		Success:          true,
		CurrentState:     current,
		RecoveryStrategy: RecoveryMonitoredAllow,
		AllowIntent:      true,
	}
}

// CanResume reports whether the current state supports picking the
// conversation back up.
func (f *FlowController) CanResume() bool {
	return CanResumeFromState(f.states.Current())
}

// HandleTimeout moves a timed-out session to its recovery state.
func (f *FlowController) HandleTimeout() State {
	recovery := RecoveryState(f.states.Current(), "timeout")
	if !f.states.TransitionTo(recovery, "conversation timeout") {
		f.states.ForceState(recovery)
	}
	return f.states.Current()
}

func isPrescreeningState(s State) bool {
	switch s {
	case StatePrescreeningActive, StateAwaitingAge, StateAwaitingDiagnosis,
		StateAwaitingMedications, StateAwaitingFlares:
		return true
	}
	return false
}
