package conversation

// IntentType classifies the purpose of a user message.
type IntentType string

const (
	IntentEligibility              IntentType = "eligibility"
	IntentEligibilitySpecificTrial IntentType = "eligibility_specific_trial"
	IntentEligibilityForShownTrial IntentType = "eligibility_for_shown_trial"
	IntentEligibilityFollowup      IntentType = "eligibility_followup"
	IntentTrialInfoRequest         IntentType = "trial_info_request"
	IntentTrialSearch              IntentType = "trial_search"
	IntentPersonalCondition        IntentType = "personal_condition"
	IntentLocationSearch           IntentType = "location_search"
	IntentTrialInterest            IntentType = "trial_interest"
	IntentAgeAnswer                IntentType = "age_answer"
	IntentYesNoAnswer              IntentType = "yes_no_answer"
	IntentNumberAnswer             IntentType = "number_answer"
	IntentConditionAnswer          IntentType = "condition_answer"
	IntentLocationAnswer           IntentType = "location_answer"
	IntentMedicationAnswer         IntentType = "medication_answer"
	IntentQuestionDuringScreening  IntentType = "question_during_prescreening"
	IntentGeneralQuery             IntentType = "general_query"
)

// DetectedIntent is the classifier's output for one turn. It is rebuilt
// fresh every turn and summarized into history, never persisted on its own.
type DetectedIntent struct {
	Type                 IntentType `json:"type"`
	Confidence           float64    `json:"confidence"`
	MatchedPattern       string     `json:"matched_pattern,omitempty"`
	TriggersPrescreening bool       `json:"triggers_prescreening,omitempty"`
}

// answerIntents are the intents that carry a direct reply to a question the
// assistant asked, as opposed to opening a new flow.
var answerIntents = map[IntentType]struct{}{
	IntentAgeAnswer:        {},
	IntentYesNoAnswer:      {},
	IntentNumberAnswer:     {},
	IntentConditionAnswer:  {},
	IntentLocationAnswer:   {},
	IntentMedicationAnswer: {},
}

// newFlowIntents open a fresh conversational flow and are honored even when
// the state machine expected something else (context switch).
var newFlowIntents = map[IntentType]struct{}{
	IntentTrialSearch:       {},
	IntentEligibility:       {},
	IntentTrialInfoRequest:  {},
	IntentPersonalCondition: {},
}

// IsAnswerIntent reports whether t is a direct answer to a pending question.
func IsAnswerIntent(t IntentType) bool {
	_, ok := answerIntents[t]
	return ok
}

// IsNewFlowIntent reports whether t starts a new conversational flow.
func IsNewFlowIntent(t IntentType) bool {
	_, ok := newFlowIntents[t]
	return ok
}
