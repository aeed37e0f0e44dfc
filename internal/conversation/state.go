package conversation

// State is one of the named conversation workflow states.
type State string

const (
	StateIdle                 State = "idle"
	StatePrescreeningActive   State = "prescreening_active"
	StateAwaitingAge          State = "awaiting_age"
	StateAwaitingDiagnosis    State = "awaiting_diagnosis"
	StateAwaitingMedications  State = "awaiting_medications"
	StateAwaitingFlares       State = "awaiting_flares"
	StateAwaitingLocation     State = "awaiting_location"
	StateAwaitingCondition    State = "awaiting_condition"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateTrialsShown          State = "trials_shown"
	StateCompleted            State = "completed"
)

var knownStates = map[State]struct{}{
	StateIdle:                 {},
	StatePrescreeningActive:   {},
	StateAwaitingAge:          {},
	StateAwaitingDiagnosis:    {},
	StateAwaitingMedications:  {},
	StateAwaitingFlares:       {},
	StateAwaitingLocation:     {},
	StateAwaitingCondition:    {},
	StateAwaitingConfirmation: {},
	StateTrialsShown:          {},
	StateCompleted:            {},
}

// IsValid reports whether s is a member of the known state enumeration.
func (s State) IsValid() bool {
	_, ok := knownStates[s]
	return ok
}

// ParseState maps a stored string to a State, falling back to idle for
// anything outside the enumeration so a corrupt row cannot poison a session.
func ParseState(raw string) State {
	s := State(raw)
	if s.IsValid() {
		return s
	}
	return StateIdle
}
