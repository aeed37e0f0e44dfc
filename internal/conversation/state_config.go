package conversation

import "strings"

// questionToState routes a prescreening question key to the state that
// awaits its answer.
var questionToState = map[string]State{
	"age":         StateAwaitingAge,
	"diagnosis":   StateAwaitingDiagnosis,
	"medications": StateAwaitingMedications,
	"flare":       StateAwaitingFlares,
}

// stateExpectedIntent maps awaiting states to the answer intent they expect.
var stateExpectedIntent = map[State]IntentType{
	StateAwaitingAge:         IntentAgeAnswer,
	StateAwaitingDiagnosis:   IntentYesNoAnswer,
	StateAwaitingMedications: IntentYesNoAnswer,
	StateAwaitingFlares:      IntentNumberAnswer,
	StateAwaitingCondition:   IntentConditionAnswer,
	StateAwaitingLocation:    IntentLocationAnswer,
}

// validIntentsByState backs the flow controller's expected-intent check.
var validIntentsByState = map[State][]IntentType{
	StateIdle: {
		IntentEligibility, IntentTrialSearch, IntentTrialInfoRequest,
		IntentPersonalCondition, IntentLocationSearch, IntentTrialInterest,
		IntentGeneralQuery,
	},
	StatePrescreeningActive: {
		IntentAgeAnswer, IntentYesNoAnswer, IntentNumberAnswer,
		IntentConditionAnswer, IntentLocationAnswer,
		IntentQuestionDuringScreening, IntentGeneralQuery,
	},
	StateAwaitingAge: {
		IntentAgeAnswer, IntentNumberAnswer, IntentGeneralQuery,
	},
	StateAwaitingDiagnosis: {
		IntentYesNoAnswer, IntentGeneralQuery,
	},
	StateAwaitingMedications: {
		IntentYesNoAnswer, IntentMedicationAnswer, IntentGeneralQuery,
	},
	StateAwaitingFlares: {
		IntentNumberAnswer, IntentGeneralQuery,
	},
	StateAwaitingLocation: {
		IntentLocationAnswer, IntentLocationSearch, IntentGeneralQuery,
	},
	StateAwaitingCondition: {
		IntentConditionAnswer, IntentPersonalCondition, IntentGeneralQuery,
	},
	StateCompleted: {
		IntentTrialSearch, IntentEligibility, IntentTrialInfoRequest,
		IntentGeneralQuery,
	},
}

// StateForQuestion returns the awaiting state for a question key, or the
// fallback (prescreening_active when empty) for unrecognized keys.
func StateForQuestion(questionKey string, fallback State) State {
	if questionKey != "" {
		lower := strings.ToLower(questionKey)
		for key, state := range questionToState {
			if strings.Contains(lower, key) {
				return state
			}
		}
	}
	if fallback != "" {
		return fallback
	}
	return StatePrescreeningActive
}

// ExpectedIntentForState returns the answer intent an awaiting state
// expects, or "" when the state has no single expected intent.
func ExpectedIntentForState(state State) IntentType {
	return stateExpectedIntent[state]
}

// ValidIntentsForState lists the intents the flow treats as in-state.
func ValidIntentsForState(state State) []IntentType {
	if intents, ok := validIntentsByState[state]; ok {
		return intents
	}
	return []IntentType{IntentGeneralQuery}
}

// IsIntentValidForState reports whether the intent is in-state.
func IsIntentValidForState(intent IntentType, state State) bool {
	for _, valid := range ValidIntentsForState(state) {
		if valid == intent {
			return true
		}
	}
	return false
}
