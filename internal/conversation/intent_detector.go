package conversation

import (
	"regexp"
	"strings"
)

// intentPattern pairs a compiled expression with the intent it signals.
// rejectAfter disqualifies a match when the text right after it matches;
// rejectWhole disqualifies when the whole message matches. Both stand in
// for lookahead, which RE2 does not support.
type intentPattern struct {
	re          *regexp.Regexp
	intent      IntentType
	confidence  float64
	rejectAfter *regexp.Regexp
	rejectWhole *regexp.Regexp
}

func pat(expr string, intent IntentType) intentPattern {
	return intentPattern{re: regexp.MustCompile(expr), intent: intent, confidence: 0.9}
}

func patConf(expr string, intent IntentType, confidence float64) intentPattern {
	return intentPattern{re: regexp.MustCompile(expr), intent: intent, confidence: confidence}
}

var eligibilityIntentPatterns = []intentPattern{
	pat(`(?:am i|would i be|could i be) eligible`, IntentEligibility),
	pat(`(?:do i|would i|can i) qualify`, IntentEligibility),
	pat(`can i (?:join|participate|enroll)`, IntentEligibility),
	pat(`check (?:my )?eligibility`, IntentEligibility),
	pat(`(?:am i|would i be) a (?:good )?candidate`, IntentEligibility),
	pat(`(?:am i|would i be) suitable`, IntentEligibility),
	pat(`meet (?:the )?criteria`, IntentEligibility),
	pat(`qualified for`, IntentEligibility),
	pat(`right for this (?:trial|study)`, IntentEligibility),
	pat(`would this (?:trial|study) work for me`, IntentEligibility),
	patConf(`i want to check if i'?m eligible`, IntentEligibility, 0.95),
	patConf(`check if i'?m eligible`, IntentEligibility, 0.95),
	patConf(`see if i'?m eligible`, IntentEligibility, 0.95),
	patConf(`find out if i'?m eligible`, IntentEligibility, 0.95),
	patConf(`^am i eligible`, IntentEligibility, 0.95),
	patConf(`^am i eligibile`, IntentEligibility, 0.95),
	pat(`am i eligible (?:for )?(?:the )?([a-zA-Z\s]+) trial`, IntentEligibilitySpecificTrial),
}

var trialInfoIntentPatterns = []intentPattern{
	patConf(`^(?:more )?(?:details?|info|information)$`, IntentTrialInfoRequest, 0.95),
	patConf(`^(?:get|show|tell me) (?:more )?(?:details?|info|information)$`, IntentTrialInfoRequest, 0.9),
	pat(`tell me (?:more )?about the ([a-zA-Z\s]+) trial`, IntentTrialInfoRequest),
	pat(`(?:more )?(?:info|information|details) (?:about|on) the ([a-zA-Z\s]+) trial`, IntentTrialInfoRequest),
	pat(`what (?:is|about) the ([a-zA-Z\s]+) trial`, IntentTrialInfoRequest),
	pat(`(?:can you|could you) tell me about the ([a-zA-Z\s]+) trial`, IntentTrialInfoRequest),
	{re: regexp.MustCompile(`(?:can you )?tell me (?:more )?about ([a-zA-Z\s]{3,20})(?:\s+(?:condition|disease|treatment))`),
		intent: IntentTrialInfoRequest, confidence: 0.9, rejectAfter: regexp.MustCompile(`^\s+trials?`)},
	{re: regexp.MustCompile(`(?:more )?(?:info|information|details) (?:about|on) ([a-zA-Z\s]{3,20})(?:\s+(?:condition|disease|treatment))`),
		intent: IntentTrialInfoRequest, confidence: 0.9, rejectAfter: regexp.MustCompile(`^\s+trials?`)},
	pat(`what (?:is|about|causes|treats) ([a-zA-Z\s]{3,20})(?:\s+(?:condition|disease))?`, IntentTrialInfoRequest),
	{re: regexp.MustCompile(`learn more about ([a-zA-Z\s]{3,20})(?:\s+(?:condition|disease|treatment))`),
		intent: IntentTrialInfoRequest, confidence: 0.9, rejectAfter: regexp.MustCompile(`^\s+trials?`)},
	pat(`explain ([a-zA-Z\s]{3,20})(?:\s+to me)?`, IntentTrialInfoRequest),
	{re: regexp.MustCompile(`(?:tell me about|what is|explain) ([a-zA-Z\s]{3,20})$`),
		intent: IntentTrialInfoRequest, confidence: 0.9, rejectWhole: regexp.MustCompile(`trials?|available|your`)},
}

var personalConditionIntentPatterns = []intentPattern{
	pat(`i have (.+)`, IntentPersonalCondition),
	pat(`i'?ve been diagnosed with (.+)`, IntentPersonalCondition),
	pat(`i suffer from (.+)`, IntentPersonalCondition),
	pat(`my (?:condition is|diagnosis is) (.+)`, IntentPersonalCondition),
	pat(`i'?m being treated for (.+)`, IntentPersonalCondition),
	pat(`i was diagnosed with (.+)`, IntentPersonalCondition),
}

var trialSearchIntentPatterns = []intentPattern{
	patConf(`([a-zA-Z\s]+)\s+trials?\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`([a-zA-Z\s]+)\s+studies\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`([a-zA-Z\s]+)\s+research\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`trials?\s+for\s+([a-zA-Z\s]+)\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`studies\s+for\s+([a-zA-Z\s]+)\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`research\s+for\s+([a-zA-Z\s]+)\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`(?:find|search|look for)\s+([a-zA-Z\s]+)\s+trials?\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`(?:find|search|look for)\s+([a-zA-Z\s]+)\s+studies\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`(?:find|search|look for)\s+trials?\s+for\s+([a-zA-Z\s]+)\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`(?:find|search|look for)\s+studies\s+for\s+([a-zA-Z\s]+)\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`clinical\s+trials?\s+for\s+([a-zA-Z\s]+)\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`clinical\s+studies\s+for\s+([a-zA-Z\s]+)\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`([a-zA-Z\s]+)\s+clinical\s+trials?\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	patConf(`([a-zA-Z\s]+)\s+clinical\s+studies\s+(?:in|near|around)\s+([a-zA-Z\s]+)`, IntentTrialSearch, 0.95),
	// Condition-only search phrasings; the location is collected on the
	// following turn.
	patConf(`(?:are there|do you have)\s+(?:any\s+)?([a-zA-Z\s]+?)\s+(?:clinical\s+)?trials?`, IntentTrialSearch, 0.9),
	patConf(`any\s+([a-zA-Z\s]+?)\s+(?:clinical\s+)?trials?\??$`, IntentTrialSearch, 0.9),
}

var trialInterestIntentPatterns = []intentPattern{
	pat(`(?:i want to|i'd like to|i would like to) (?:participate|join|enroll)`, IntentTrialInterest),
	pat(`(?:i'm|i am) interested in (?:participating|joining|enrolling)`, IntentTrialInterest),
	pat(`(?:i'm|i am) interested in (?:clinical )?trials?`, IntentTrialInterest),
	pat(`how (?:can|do) i (?:join|participate|enroll)`, IntentTrialInterest),
	pat(`(?:looking for|want to find) (?:a )?(?:clinical )?trials?`, IntentTrialInterest),
	pat(`what trials? (?:are available|do you have)`, IntentTrialInterest),
	pat(`tell me about (?:the |your )?(?:available )?trials?(?:\s+for\s+me)?`, IntentTrialInterest),
	pat(`want to (?:participate|join|enroll) in (?:a |an )?(?:clinical )?trial`, IntentTrialInterest),
	patConf(`show me ([a-zA-Z\s]+) trials?`, IntentTrialSearch, 0.9),
	patConf(`find ([a-zA-Z\s]+) trials?`, IntentTrialSearch, 0.9),
	patConf(`search for ([a-zA-Z\s]+) trials?`, IntentTrialSearch, 0.9),
	patConf(`([a-zA-Z\s]+) trials? available`, IntentTrialSearch, 0.9),
	pat(`show me (?:the |your )?(?:available )?trials?$`, IntentTrialInterest),
	patConf(`(?:i'm|i am) interested in (?:the )?([a-zA-Z\s]+) trial`, IntentEligibilitySpecificTrial, 0.9),
}

var locationIntentPatterns = []intentPattern{
	pat(`trials? (?:in|near|around) ([a-zA-Z\s]+)`, IntentLocationSearch),
	pat(`studies (?:in|near|around) ([a-zA-Z\s]+)`, IntentLocationSearch),
	pat(`(?:i'?m |i am |im )?(?:in|from|based in|located in) ([a-zA-Z\s]+)`, IntentLocationSearch),
	pat(`(?:i |i'?m |i am |im )?(?:live|living) in ([a-zA-Z\s]+)`, IntentLocationSearch),
}

var followupIntentPatterns = []intentPattern{
	patConf(`tell me more`, IntentEligibilityFollowup, 0.85),
	patConf(`more (?:information|info|details)`, IntentEligibilityFollowup, 0.85),
	patConf(`what else`, IntentEligibilityFollowup, 0.85),
	patConf(`continue`, IntentEligibilityFollowup, 0.85),
}

var answerIntentPatterns = []intentPattern{
	patConf(`^(?:yes|no|yeah|nope|y|n)$`, IntentYesNoAnswer, 0.95),
	patConf(`^(?:i'?m |i am )?\d+(?:\s*years?(?:\s*old)?)?$`, IntentAgeAnswer, 0.95),
	patConf(`^\d+$`, IntentAgeAnswer, 0.9),
	patConf(`(?:times?|flares?|attacks?) (?:per|a|in)`, IntentNumberAnswer, 0.9),
}

// intentPatternGroups is the priority order for general pattern matching.
var intentPatternGroups = [][]intentPattern{
	eligibilityIntentPatterns,
	trialInfoIntentPatterns,
	personalConditionIntentPatterns,
	trialSearchIntentPatterns,
	trialInterestIntentPatterns,
	locationIntentPatterns,
	followupIntentPatterns,
	answerIntentPatterns,
}

// typoReplacer fixes the misspellings we actually see in traffic before
// any pattern runs.
var typoReplacer = strings.NewReplacer(
	"cehck", "check",
	"chekc", "check",
	"elegible", "eligible",
	"eligable", "eligible",
	"eleigible", "eligible",
	"trails", "trials",
	"diabeties", "diabetes",
	"diabetis", "diabetes",
	"qualifiy", "qualify",
	"paricipate", "participate",
)

var (
	digitRE           = regexp.MustCompile(`\d+`)
	yesNoPrefixRE     = regexp.MustCompile(`^(?:yes|no|yeah|nope|y|n|sure|ok|okay)`)
	affirmEligibleRE  = regexp.MustCompile(`\b(yes|yeah|yep|sure|ok|okay|eligible|eligibility)\b`)
	placeNameRE       = regexp.MustCompile(`^(?:i.{0,5}\s+)?(?:in\s+|from\s+)?[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s*$`)
	singleCapWordRE   = regexp.MustCompile(`^[A-Z][a-z]+$`)
	commonLocationRE  = regexp.MustCompile(`\b(?:boston|new\s*york|california|texas|florida|chicago|atlanta|seattle|denver|phoenix|philadelphia|michigan|ohio|tulsa|houston|dallas|miami|orlando)\b`)
	locationShapeRE   = regexp.MustCompile(`\b(?:new\s+\w+|[\w\s]{2,}\s+(?:city|state|county|texas|california|florida|york|jersey))\b`)
	imInLocationRE    = regexp.MustCompile(`(?i)i'?m\s+in\s+[A-Za-z]+`)
	liveInLocationRE  = regexp.MustCompile(`(?i)(?:live|living)\s+in\s+[A-Za-z]+`)
	fromLocationRE    = regexp.MustCompile(`(?i)(?:from|based\s+in)\s+[A-Za-z]+`)
	capitalizedWordRE = regexp.MustCompile(`[A-Z][a-z]+`)
)

// eligibilityQuestionPatterns recognize our own prompts that invite an
// eligibility check, so a bare "yes" routes to eligibility.
var eligibilityQuestionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`would you like to check if you'?re? eligible`),
	regexp.MustCompile(`would you like me to check (?:if |whether )?you'?re? eligible`),
	regexp.MustCompile(`want to check (?:your )?eligibility`),
	regexp.MustCompile(`interested in checking (?:if |whether )?you qualify`),
	regexp.MustCompile(`shall we check if you'?re? eligible`),
	regexp.MustCompile(`let me check if you'?re? eligible`),
	regexp.MustCompile(`would you like to see if you qualify`),
	regexp.MustCompile(`want me to check if you qualify`),
	regexp.MustCompile(`check if you might be eligible`),
	regexp.MustCompile(`see if you'?re? eligible for this trial`),
	regexp.MustCompile(`determine (?:if |whether )?you'?re? eligible`),
}

var questionIndicators = []string{
	"which location", "what location", "where are you",
	"which trial", "what condition", "which condition",
	"could you tell me", "could you please", "can you tell me",
}

var locationIndicatorWords = []string{
	"in", "from", "near", "at", "city", "state", "county", "live", "located",
}

// IntentDetector is the state-aware classifier. Stateless and safe for
// concurrent use.
type IntentDetector struct{}

// NewIntentDetector returns a detector ready for use.
func NewIntentDetector() *IntentDetector {
	return &IntentDetector{}
}

// Detect classifies the message. It never fails: an unmatched message
// resolves to a low-confidence general query.
func (d *IntentDetector) Detect(message string, ctx *Context) DetectedIntent {
	processed := d.preprocess(message)
	if ctx == nil {
		ctx = NewContext("")
	}

	// Highest priority: responses to a question we just asked, when that
	// question carried special context (trial info or eligibility prompt).
	if d.isContextualResponse(processed, ctx) {
		if intent, ok := d.detectContextualIntent(processed, ctx); ok {
			fromEligibilityQuestion := d.lastResponseAskedEligibility(ctx)
			if (ctx.JustShowedTrialInfo || fromEligibilityQuestion) && intent.Confidence >= 0.9 {
				return intent
			}
		}
	}

	// State-specific shape checks for awaiting states.
	if intent, ok := d.detectStateSpecificIntent(processed, ctx); ok && intent.Confidence >= 0.8 {
		if len(strings.Fields(processed)) <= 3 && isAwaitingState(ctx.State) {
			if ctx.State == StateAwaitingLocation {
				intent.Confidence = 0.98
			} else if intent.Confidence < 0.95 {
				intent.Confidence = 0.95
			}
			return intent
		}
	}

	// General pattern matching; a confident first match wins.
	patternIntent, hasPattern := d.detectPatternIntent(processed, message, ctx)
	if hasPattern && patternIntent.Confidence >= 0.9 {
		return patternIntent
	}

	if d.isContextualResponse(processed, ctx) {
		if intent, ok := d.detectContextualIntent(processed, ctx); ok {
			return intent
		}
	}

	if hasPattern {
		return patternIntent
	}

	return DetectedIntent{Type: IntentGeneralQuery, Confidence: 0.5}
}

func (d *IntentDetector) preprocess(message string) string {
	return typoReplacer.Replace(strings.ToLower(strings.TrimSpace(message)))
}

func (d *IntentDetector) detectStateSpecificIntent(message string, ctx *Context) (DetectedIntent, bool) {
	expected := ExpectedIntentForState(ctx.State)
	if expected == "" {
		return DetectedIntent{}, false
	}

	switch expected {
	case IntentAgeAnswer:
		if digitRE.MatchString(message) {
			return DetectedIntent{Type: IntentAgeAnswer, Confidence: 0.95}, true
		}
	case IntentYesNoAnswer:
		if yesNoPrefixRE.MatchString(message) {
			return DetectedIntent{Type: IntentYesNoAnswer, Confidence: 0.95}, true
		}
	case IntentNumberAnswer:
		// In awaiting_flares a bare number is a count, not an age.
		if digitRE.MatchString(message) {
			return DetectedIntent{Type: IntentNumberAnswer, Confidence: 0.98}, true
		}
	case IntentConditionAnswer, IntentLocationAnswer:
		words := strings.Fields(message)
		if len(words) > 5 {
			break
		}
		if expected == IntentLocationAnswer {
			if len(words) == 1 {
				return DetectedIntent{Type: IntentLocationAnswer, Confidence: 0.98}, true
			}
			if d.looksLikeLocation(message) {
				return DetectedIntent{Type: IntentLocationAnswer, Confidence: 0.9}, true
			}
			break
		}
		if len(words) == 1 {
			return DetectedIntent{Type: IntentConditionAnswer, Confidence: 0.98}, true
		}
		return DetectedIntent{Type: IntentConditionAnswer, Confidence: 0.85}, true
	}

	return DetectedIntent{}, false
}

func (d *IntentDetector) looksLikeLocation(message string) bool {
	lower := strings.ToLower(message)
	for _, word := range locationIndicatorWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return locationShapeRE.MatchString(lower) ||
		placeNameRE.MatchString(message) ||
		singleCapWordRE.MatchString(strings.TrimSpace(message)) ||
		commonLocationRE.MatchString(lower) ||
		imInLocationRE.MatchString(message) ||
		liveInLocationRE.MatchString(message) ||
		fromLocationRE.MatchString(message)
}

func (d *IntentDetector) isContextualResponse(message string, ctx *Context) bool {
	if ctx.StateDataBool("awaiting_location") ||
		ctx.StateDataBool("awaiting_condition") ||
		ctx.StateDataBool("awaiting_trial_specification") ||
		ctx.JustShowedTrialInfo {
		return true
	}

	lastResponse := strings.ToLower(ctx.LastBotMessage())
	if lastResponse == "" {
		return false
	}
	if d.responseAsksEligibility(lastResponse) {
		return true
	}
	for _, indicator := range questionIndicators {
		if strings.Contains(lastResponse, indicator) {
			return len(strings.Fields(message)) <= 5
		}
	}
	return false
}

func (d *IntentDetector) responseAsksEligibility(lastResponse string) bool {
	for _, re := range eligibilityQuestionPatterns {
		if re.MatchString(lastResponse) {
			return true
		}
	}
	return false
}

func (d *IntentDetector) lastResponseAskedEligibility(ctx *Context) bool {
	return d.responseAsksEligibility(strings.ToLower(ctx.LastBotMessage()))
}

func (d *IntentDetector) detectContextualIntent(message string, ctx *Context) (DetectedIntent, bool) {
	if ctx.JustShowedTrialInfo || d.lastResponseAskedEligibility(ctx) {
		if affirmEligibleRE.MatchString(message) {
			return DetectedIntent{Type: IntentEligibility, Confidence: 0.95, TriggersPrescreening: true}, true
		}
	}

	if ctx.StateDataBool("awaiting_location") {
		return DetectedIntent{Type: IntentLocationAnswer, Confidence: 0.9}, true
	}
	if ctx.StateDataBool("awaiting_condition") {
		return DetectedIntent{Type: IntentConditionAnswer, Confidence: 0.9}, true
	}
	if ctx.StateDataBool("awaiting_trial_specification") {
		if ctx.FocusLocation != "" && ctx.FocusCondition == "" {
			return DetectedIntent{Type: IntentConditionAnswer, Confidence: 0.85}, true
		}
		return DetectedIntent{Type: IntentTrialInfoRequest, Confidence: 0.85}, true
	}

	lastResponse := strings.ToLower(ctx.LastBotMessage())
	if lastResponse != "" {
		if strings.Contains(lastResponse, "which location") || strings.Contains(lastResponse, "what location") {
			return DetectedIntent{Type: IntentLocationAnswer, Confidence: 0.85}, true
		}
		if strings.Contains(lastResponse, "which trial") || strings.Contains(lastResponse, "what condition") {
			return DetectedIntent{Type: IntentConditionAnswer, Confidence: 0.85}, true
		}
	}

	return DetectedIntent{}, false
}

func (d *IntentDetector) detectPatternIntent(processed, original string, ctx *Context) (DetectedIntent, bool) {
	for _, group := range intentPatternGroups {
		for _, p := range group {
			loc := p.re.FindStringIndex(processed)
			if loc == nil {
				continue
			}
			if p.rejectAfter != nil && p.rejectAfter.MatchString(processed[loc[1]:]) {
				continue
			}
			if p.rejectWhole != nil && p.rejectWhole.MatchString(processed) {
				continue
			}
			// A bare answer with no pending question is not an answer;
			// let the fallbacks below decide instead.
			if IsAnswerIntent(p.intent) && !d.hasQuestionContext(ctx) {
				continue
			}
			return DetectedIntent{
				Type:                 p.intent,
				Confidence:           p.confidence,
				MatchedPattern:       p.re.String(),
				TriggersPrescreening: triggersPrescreening(p.intent),
			}, true
		}
	}

	if d.hasConditionLocationCombo(processed, original) {
		return DetectedIntent{Type: IntentTrialSearch, Confidence: 0.85}, true
	}

	if len(strings.Fields(processed)) <= 3 && ctx.FocusLocation != "" {
		return DetectedIntent{Type: IntentTrialSearch, Confidence: 0.7}, true
	}

	return DetectedIntent{}, false
}

// hasQuestionContext reports whether the session is actually waiting on an
// answer, either through an awaiting state or a question we just asked.
func (d *IntentDetector) hasQuestionContext(ctx *Context) bool {
	if isAwaitingState(ctx.State) || ctx.State == StatePrescreeningActive {
		return true
	}
	if ctx.StateDataBool("awaiting_location") || ctx.StateDataBool("awaiting_condition") ||
		ctx.StateDataBool("awaiting_trial_specification") || ctx.JustShowedTrialInfo {
		return true
	}
	return strings.Contains(ctx.LastBotMessage(), "?")
}

func (d *IntentDetector) hasConditionLocationCombo(processed, original string) bool {
	hasLocationCue := strings.Contains(processed, " in ") ||
		strings.Contains(processed, " near ") ||
		strings.Contains(processed, " around ") ||
		strings.Contains(processed, " at ") ||
		capitalizedWordRE.MatchString(original)
	if !hasLocationCue {
		return false
	}

	words := strings.Fields(processed)
	for i := range words {
		if isMedicalCondition(words[i]) {
			return true
		}
		if i < len(words)-1 && isMedicalCondition(words[i]+" "+words[i+1]) {
			return true
		}
		if i < len(words)-2 && isMedicalCondition(words[i]+" "+words[i+1]+" "+words[i+2]) {
			return true
		}
	}
	return false
}

func triggersPrescreening(intent IntentType) bool {
	switch intent {
	case IntentEligibility, IntentEligibilitySpecificTrial, IntentPersonalCondition:
		return true
	}
	return false
}

func isAwaitingState(s State) bool {
	switch s {
	case StateAwaitingAge, StateAwaitingDiagnosis, StateAwaitingMedications,
		StateAwaitingFlares, StateAwaitingLocation, StateAwaitingCondition:
		return true
	}
	return false
}
