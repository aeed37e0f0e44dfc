package conversation

import (
	"time"

	"github.com/trialscout/trialchat/pkg/logging"
)

// validTransitions is the adjacency table of the conversation state machine.
// A transition absent from the table is rejected rather than clamped.
var validTransitions = map[State][]State{
	StateIdle: {
		StatePrescreeningActive,
		StateAwaitingLocation,
		StateAwaitingCondition,
		StateTrialsShown,
	},
	StatePrescreeningActive: {
		StateAwaitingAge,
		StateAwaitingDiagnosis,
		StateAwaitingMedications,
		StateAwaitingFlares,
		StateAwaitingLocation,
		StateCompleted,
		StateIdle,
		StateTrialsShown,
	},
	StateAwaitingAge: {
		StatePrescreeningActive,
		StateCompleted,
		StateIdle,
		StateAwaitingDiagnosis,
	},
	StateAwaitingDiagnosis: {
		StatePrescreeningActive,
		StateCompleted,
		StateIdle,
		StateAwaitingMedications,
	},
	StateAwaitingMedications: {
		StatePrescreeningActive,
		StateCompleted,
		StateIdle,
		StateAwaitingFlares,
	},
	StateAwaitingFlares: {
		StatePrescreeningActive,
		StateCompleted,
		StateIdle,
	},
	StateAwaitingLocation: {
		StatePrescreeningActive,
		StateAwaitingCondition,
		StateIdle,
		StateAwaitingConfirmation,
		StateAwaitingAge,
		StateTrialsShown,
	},
	StateAwaitingCondition: {
		StatePrescreeningActive,
		StateAwaitingLocation,
		StateIdle,
		StateTrialsShown,
	},
	StateAwaitingConfirmation: {
		StatePrescreeningActive,
		StateIdle,
		StateTrialsShown,
	},
	StateTrialsShown: {
		StatePrescreeningActive,
		StateAwaitingConfirmation,
		StateIdle,
		StateAwaitingCondition,
		StateAwaitingLocation,
	},
	StateCompleted: {
		StateIdle,
		StatePrescreeningActive,
		StateTrialsShown,
	},
}

// StateVisit is one entry in the transition history.
type StateVisit struct {
	State     State     `json:"state"`
	EnteredAt time.Time `json:"entered_at"`
}

// StateManager enforces the workflow state machine for one session. It is
// rehydrated from the persisted context each turn and folded back after the
// handler runs; it holds no cross-request state of its own.
type StateManager struct {
	current   State
	enteredAt time.Time
	history   []StateVisit
	logger    *logging.Logger
}

// NewStateManager returns a manager at idle.
func NewStateManager(logger *logging.Logger) *StateManager {
	return &StateManager{
		current:   StateIdle,
		enteredAt: time.Now().UTC(),
		logger:    logger,
	}
}

// StateManagerFromContext rehydrates a manager from a persisted context.
// A context carrying a state outside the enumeration comes back at idle.
func StateManagerFromContext(ctx *Context, logger *logging.Logger) *StateManager {
	m := NewStateManager(logger)
	if ctx == nil {
		return m
	}
	m.current = ParseState(string(ctx.State))
	return m
}

// Current returns the present state.
func (m *StateManager) Current() State {
	return m.current
}

// CanTransitionTo reports whether target is reachable from the current state.
func (m *StateManager) CanTransitionTo(target State) bool {
	for _, s := range validTransitions[m.current] {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionTo moves to target if the edge exists. On an invalid edge it
// returns false and leaves the current state untouched.
func (m *StateManager) TransitionTo(target State, reason string) bool {
	if !m.CanTransitionTo(target) {
		if m.logger != nil {
			m.logger.Warn("invalid state transition attempted",
				"from", string(m.current), "to", string(target))
		}
		return false
	}

	m.history = append(m.history, StateVisit{State: m.current, EnteredAt: m.enteredAt})
	from := m.current
	m.current = target
	m.enteredAt = time.Now().UTC()

	if m.logger != nil {
		m.logger.Info("state transition",
			"from", string(from), "to", string(target), "reason", reason)
	}
	return true
}

// ForceState sets the state without edge validation. Reserved for recovery
// paths and rehydration repair.
func (m *StateManager) ForceState(target State) {
	if !target.IsValid() {
		target = StateIdle
	}
	m.history = append(m.history, StateVisit{State: m.current, EnteredAt: m.enteredAt})
	m.current = target
	m.enteredAt = time.Now().UTC()
}

// Reset returns the machine to idle and drops history.
func (m *StateManager) Reset() {
	m.current = StateIdle
	m.history = nil
	m.enteredAt = time.Now().UTC()
}

// History returns the visits before the current state, oldest first.
func (m *StateManager) History() []StateVisit {
	return m.history
}

// StateDuration reports how long the session has been in the current state.
func (m *StateManager) StateDuration() time.Duration {
	return time.Since(m.enteredAt)
}

// SuggestNextStates lists the states reachable from here.
func (m *StateManager) SuggestNextStates() []State {
	targets := validTransitions[m.current]
	out := make([]State, len(targets))
	copy(out, targets)
	return out
}

// ExpectedIntents lists intent types that make sense in the current state.
func (m *StateManager) ExpectedIntents() []IntentType {
	return ValidIntentsForState(m.current)
}

// IsIntentValid reports whether the intent fits the current state. General
// queries are accepted everywhere.
func (m *StateManager) IsIntentValid(intent IntentType) bool {
	return IsIntentValidForState(intent, m.current)
}

// IsInPrescreening reports whether the session is anywhere in the
// prescreening question flow.
func (m *StateManager) IsInPrescreening() bool {
	switch m.current {
	case StatePrescreeningActive, StateAwaitingAge, StateAwaitingDiagnosis,
		StateAwaitingMedications, StateAwaitingFlares:
		return true
	}
	return false
}

// IsAwaitingInput reports whether the session is blocked on a user answer.
func (m *StateManager) IsAwaitingInput() bool {
	return isAwaitingState(m.current)
}
