package conversation

import (
	"regexp"
	"strconv"
	"strings"
)

// Location patterns, ordered most-specific first. Full-message anchors come
// last so "diabetes trials in Atlanta" binds to the prepositional form.
var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:are there|any)\s+trials?\s+(?:in|at|near)\s+([a-zA-Z][a-zA-Z\s]{2,30})(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)trials?\s+(?:in|at|near)\s+([a-zA-Z][a-zA-Z\s]{2,30})(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)stud(?:y|ies)\s+(?:in|at|near)\s+([a-zA-Z][a-zA-Z\s]{2,30})(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)trials?\s+(?:available\s+)?in\s+([a-zA-Z][a-zA-Z\s]{2,30})(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)what.+trials?.+in\s+([a-zA-Z][a-zA-Z\s]{2,30})(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)available\s+in\s+([a-zA-Z][a-zA-Z\s]{2,30})(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)\b(?:in|at|near|around)\s+([A-Za-z][a-zA-Z]+(?:\s+[A-Za-z][a-zA-Z]+)*?)(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)(?:from|based in|located in)\s+([A-Za-z][a-zA-Z]+(?:\s+[A-Za-z][a-zA-Z]+)*?)(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)(?:live|living) in\s+([A-Za-z][a-zA-Z]+(?:\s+[A-Za-z][a-zA-Z]+)*?)(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)([a-zA-Z\s]+),?\s+like\s+i\s+said`),
	regexp.MustCompile(`(?i)^([a-zA-Z][a-zA-Z\s]{1,30})$`),
}

// Text a location pattern may capture that is never a place.
var locationFalsePositives = []string{
	"trials", "clinical trials", "studies", "research",
	"participate", "join", "enroll", "available", "hello",
	"trials are available", "tell me about your trials",
	"what trials", "which trials", "any trials",
	"clinical trial", "medical research",
}

var conditionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i have (.+?)(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)i'?ve been diagnosed with (.+?)(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)i suffer from (.+?)(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)my (?:condition|diagnosis) is (.+?)(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)i'?m being treated for (.+?)(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)i was diagnosed with (.+?)(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)the ([a-zA-Z\s]+) (?:trials?|studies|research)`),
	regexp.MustCompile(`(?i)(?:are there|do you have|any)\s+([a-zA-Z\s]+?)\s+(?:clinical\s+)?(?:trials?|studies)\b`),
	regexp.MustCompile(`(?i)([a-zA-Z\s]+) (?:trials?|studies|research) (?:in|near|around|for)`),
	regexp.MustCompile(`(?i)(?:trials?|studies|research) for ([a-zA-Z\s]+)`),
	regexp.MustCompile(`(?i)eligible for (?:the )?([a-zA-Z\s]+) (?:trials?|studies)`),
	regexp.MustCompile(`(?i)(?:find|search|look for) ([a-zA-Z\s]+) (?:trials?|studies|research)`),
	regexp.MustCompile(`(?i)clinical (?:trials?|studies|research) for ([a-zA-Z\s]+)`),
	regexp.MustCompile(`(?i)([a-zA-Z\s]+) clinical (?:trials?|studies|research)`),
	regexp.MustCompile(`(?i)([a-zA-Z\s]+) studies (?:in|near|around)`),
	regexp.MustCompile(`(?i)studies (?:for|on|about) ([a-zA-Z\s]+)`),
	regexp.MustCompile(`(?i)research (?:for|on|about) ([a-zA-Z\s]+)`),
	regexp.MustCompile(`(?i)tell me (?:more )?about (?:the )?([a-zA-Z\s]+?)(?:\s+(?:condition|disease|trial|study))?(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)what is (?:the )?([a-zA-Z\s]+?)(?:\s+(?:condition|disease))?(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)explain (?:the )?([a-zA-Z\s]+?)(?:\s+to me)?(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)(?:more )?(?:info|information|details) (?:about|on) (?:the )?([a-zA-Z\s]+?)(?:\s+(?:condition|disease))?(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)learn more about (?:the )?([a-zA-Z\s]+?)(?:\s+(?:condition|disease))?(?:[,.!?]|$)`),
}

var agePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:i'?m |i am )?(\d+)(?:\s*years?(?:\s*old)?)?`),
	regexp.MustCompile(`(?i)age(?:d)?\s*(?:is\s*)?(\d+)`),
	regexp.MustCompile(`(?i)(\d+)\s*y/?o`),
	regexp.MustCompile(`^(\d+)$`),
}

var numberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)\s*(?:times?|x)`),
	regexp.MustCompile(`(?i)(\d+)\s*(?:flares?|attacks?|episodes?)`),
	regexp.MustCompile(`(?i)(?:about|around|approximately)?\s*(\d+)`),
	regexp.MustCompile(`^(\d+)$`),
}

var yesPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:yes|yeah|yep|yup|sure|okay|ok|definitely|absolutely|correct)$`),
	regexp.MustCompile(`^y$`),
	regexp.MustCompile(`^that'?s (?:right|correct)`),
	regexp.MustCompile(`^i do`),
	regexp.MustCompile(`^i am`),
}

var noPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:no|nope|nah|not really|negative|incorrect)$`),
	regexp.MustCompile(`^n$`),
	regexp.MustCompile(`^that'?s (?:wrong|incorrect)`),
	regexp.MustCompile(`^i don'?t`),
	regexp.MustCompile(`^i'?m not`),
}

var medicationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:i take|i'?m taking|taking) ([a-zA-Z\s,]+)`),
	regexp.MustCompile(`(?i)(?:on|using) ([a-zA-Z\s,]+) (?:medication|medicine|drug)`),
	regexp.MustCompile(`(?i)([a-zA-Z]+) (?:\d+\s*mg|\d+mg)`),
}

var trialRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)trial #?(\d+)`),
	regexp.MustCompile(`(?i)study #?(\d+)`),
	regexp.MustCompile(`(?i)protocol ([A-Z0-9\-]+)`),
	regexp.MustCompile(`(?i)NCT(\d+)`),
}

var (
	conditionVerbPrefixRE   = regexp.MustCompile(`(?i)^(find|search|look for|looking for|show me|get)\s+`)
	conditionTrailingLocRE  = regexp.MustCompile(`(?i)\s+(in|near|around|at)\s+[a-zA-Z\s]+$`)
	conditionArticleRE      = regexp.MustCompile(`(?i)^(a |an |the |some |any )`)
	trailingPunctRE         = regexp.MustCompile(`[.,!?]+$`)
	locationNearMeRE        = regexp.MustCompile(`(?i)\b(near\s+)?me\s+(in|at)?\s*`)
	locationPrepPrefixRE    = regexp.MustCompile(`(?i)^(in|at|near|around)\s+`)
	whitespaceRunRE         = regexp.MustCompile(`\s+`)
	conditionAnswerPrefixRE = regexp.MustCompile(`^(i have |i've been diagnosed with |i suffer from )`)
	conditionAnswerTheRE    = regexp.MustCompile(`^(a |an |the )`)
	medSplitRE              = regexp.MustCompile(`[,\s]+and\s+|,\s*`)
)

// EntityExtractor pulls typed values out of a message using intent-scoped
// rules. It is stateless and safe for concurrent use.
type EntityExtractor struct{}

// NewEntityExtractor returns an extractor ready for use.
func NewEntityExtractor() *EntityExtractor {
	return &EntityExtractor{}
}

// Extract runs the two-phase extraction plus context inference. It never
// fails: an entity type with no matching rule simply stays absent.
func (e *EntityExtractor) Extract(message string, intent DetectedIntent, ctx *Context) EntityMap {
	entities := EntityMap{}

	// Phase 1: intent-specific extraction at full confidence.
	e.extractForIntent(entities, message, intent, ctx)

	// Phase 2: opportunistic extraction of anything not already found,
	// with a confidence penalty.
	e.extractOpportunistic(entities, message)

	// Phase 3: fill missing condition/location from the session focus
	// when the intent implies a trial query.
	e.inferFromContext(entities, intent, ctx)

	return entities
}

func (e *EntityExtractor) extractForIntent(entities EntityMap, message string, intent DetectedIntent, ctx *Context) {
	switch intent.Type {
	case IntentLocationAnswer:
		e.extractLocationAnswer(entities, message)
	case IntentConditionAnswer:
		e.extractConditionAnswer(entities, message)
	case IntentAgeAnswer:
		e.extractAge(entities, message)
	case IntentYesNoAnswer:
		e.extractBoolean(entities, message)
	case IntentNumberAnswer:
		e.extractNumber(entities, message)
	case IntentMedicationAnswer:
		e.extractMedications(entities, message)
	case IntentTrialInfoRequest, IntentTrialSearch:
		e.extractCondition(entities, message)
		e.extractLocation(entities, message)
	case IntentPersonalCondition:
		e.extractCondition(entities, message)
	case IntentLocationSearch:
		e.extractLocation(entities, message)
	default:
		e.extractLocation(entities, message)
		e.extractCondition(entities, message)
		e.extractTrialReference(entities, message)
		if ctx != nil && (ctx.State == StateAwaitingAge || ctx.State == StateAwaitingFlares) {
			e.extractAge(entities, message)
			e.extractNumber(entities, message)
		}
	}
}

func (e *EntityExtractor) extractOpportunistic(entities EntityMap, message string) {
	scratch := EntityMap{}
	if _, have := entities[EntityCondition]; !have {
		e.extractCondition(scratch, message)
	}
	if _, have := entities[EntityLocation]; !have {
		e.extractLocation(scratch, message)
	}
	if _, have := entities[EntityTrialID]; !have {
		e.extractTrialReference(scratch, message)
	}
	// Age, numbers, and medications are too context-sensitive to pick up
	// opportunistically.
	for typ, ent := range scratch {
		ent.Confidence = ent.Confidence - 0.2
		if ent.Confidence < 0.5 {
			ent.Confidence = 0.5
		}
		ent.Source = SourceOpportunistic
		entities[typ] = ent
	}
}

func (e *EntityExtractor) inferFromContext(entities EntityMap, intent DetectedIntent, ctx *Context) {
	if ctx == nil {
		return
	}
	if intent.Type != IntentTrialSearch && intent.Type != IntentTrialInfoRequest {
		return
	}
	if _, have := entities[EntityLocation]; !have && ctx.FocusLocation != "" {
		entities[EntityLocation] = Entity{
			Value:      ctx.FocusLocation,
			Normalized: ctx.FocusLocation,
			Confidence: 0.8,
			Source:     SourceContext,
		}
	}
	if _, have := entities[EntityCondition]; !have && ctx.FocusCondition != "" {
		entities[EntityCondition] = Entity{
			Value:      ctx.FocusCondition,
			Normalized: ctx.FocusCondition,
			Confidence: 0.8,
			Source:     SourceContext,
		}
	}
}

func (e *EntityExtractor) extractLocation(entities EntityMap, message string) {
	for _, re := range locationPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		location := strings.TrimSpace(m[1])
		if isLocationFalsePositive(location) {
			continue
		}
		// Only validate the captured text, not the whole message, so
		// multi-entity messages still yield a location.
		if isMedicalCondition(location) || isLikelyCondition(location) {
			continue
		}
		location = cleanLocationText(location)
		if location == "" || isLikelyCondition(location) {
			continue
		}
		location = normalizeLocation(location)
		if len(location) > 50 || len(strings.Fields(location)) > 4 {
			continue
		}
		entities[EntityLocation] = Entity{
			Value:      location,
			Normalized: location,
			Confidence: 0.9,
			Source:     SourceDirect,
		}
		return
	}
}

func (e *EntityExtractor) extractLocationAnswer(entities EntityMap, message string) {
	clean := strings.TrimSpace(message)
	if isBooleanResponse(clean) {
		return
	}
	if isMedicalCondition(clean) {
		// The user answered with a condition, not a place.
		return
	}
	location := normalizeLocation(clean)
	entities[EntityLocation] = Entity{
		Value:      location,
		Normalized: location,
		Confidence: 0.85,
		Source:     SourceContextual,
	}
}

func (e *EntityExtractor) extractCondition(entities EntityMap, message string) {
	for _, re := range conditionPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		condition := cleanConditionText(strings.TrimSpace(m[1]))
		if condition == "" {
			continue
		}
		entities[EntityCondition] = Entity{
			Value:      condition,
			Normalized: normalizeCondition(condition),
			Confidence: 0.9,
			Source:     SourceDirect,
		}
		return
	}

	// Standalone short message that names a known condition.
	if len(strings.Fields(message)) <= 3 {
		normalized := normalizeCondition(message)
		if isMedicalCondition(message) || normalized != strings.ToLower(strings.TrimSpace(message)) {
			entities[EntityCondition] = Entity{
				Value:      strings.TrimSpace(message),
				Normalized: normalized,
				Confidence: 0.8,
				Source:     SourceInferred,
			}
		}
	}
}

func (e *EntityExtractor) extractConditionAnswer(entities EntityMap, message string) {
	condition := strings.ToLower(strings.TrimSpace(message))
	condition = conditionAnswerPrefixRE.ReplaceAllString(condition, "")
	condition = conditionAnswerTheRE.ReplaceAllString(condition, "")
	entities[EntityCondition] = Entity{
		Value:      condition,
		Normalized: normalizeCondition(condition),
		Confidence: 0.85,
		Source:     SourceContextual,
	}
}

func (e *EntityExtractor) extractAge(entities EntityMap, message string) {
	for _, re := range agePatterns {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		age, err := strconv.Atoi(m[1])
		if err != nil || age < 0 || age > 150 {
			continue
		}
		entities[EntityAge] = Entity{
			Value:      m[1],
			Normalized: strconv.Itoa(age),
			Confidence: 0.95,
			Source:     SourceDirect,
		}
		return
	}
}

func (e *EntityExtractor) extractBoolean(entities EntityMap, message string) {
	lower := strings.ToLower(strings.TrimSpace(message))
	// Negatives first: "i don't" would otherwise match the "i do" prefix.
	for _, re := range noPatterns {
		if re.MatchString(lower) {
			entities[EntityBoolean] = Entity{Value: "no", Normalized: "false", Confidence: 0.95, Source: SourceDirect}
			return
		}
	}
	for _, re := range yesPatterns {
		if re.MatchString(lower) {
			entities[EntityBoolean] = Entity{Value: "yes", Normalized: "true", Confidence: 0.95, Source: SourceDirect}
			return
		}
	}
}

func (e *EntityExtractor) extractNumber(entities EntityMap, message string) {
	for _, re := range numberPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		if _, err := strconv.Atoi(m[1]); err != nil {
			continue
		}
		entities[EntityNumber] = Entity{
			Value:      m[1],
			Normalized: m[1],
			Confidence: 0.9,
			Source:     SourceDirect,
		}
		return
	}
}

func (e *EntityExtractor) extractMedications(entities EntityMap, message string) {
	var medications []string
	for _, re := range medicationPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		for _, med := range medSplitRE.Split(m[1], -1) {
			if med = strings.TrimSpace(med); med != "" {
				medications = append(medications, med)
			}
		}
	}
	if len(medications) > 0 {
		joined := strings.Join(medications, ", ")
		entities[EntityMedication] = Entity{
			Value:      joined,
			Normalized: joined,
			Confidence: 0.85,
			Source:     SourceDirect,
		}
	}
}

func (e *EntityExtractor) extractTrialReference(entities EntityMap, message string) {
	for _, re := range trialRefPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		entities[EntityTrialID] = Entity{
			Value:      m[1],
			Normalized: m[1],
			Confidence: 0.9,
			Source:     SourceDirect,
		}
		return
	}
}

func isLocationFalsePositive(location string) bool {
	lower := strings.ToLower(location)
	for _, fp := range locationFalsePositives {
		if lower == fp || strings.Contains(lower, fp) {
			return true
		}
	}
	return false
}

func isBooleanResponse(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, re := range yesPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	for _, re := range noPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

func cleanConditionText(condition string) string {
	condition = conditionVerbPrefixRE.ReplaceAllString(condition, "")
	condition = conditionTrailingLocRE.ReplaceAllString(condition, "")
	condition = conditionArticleRE.ReplaceAllString(condition, "")
	condition = trailingPunctRE.ReplaceAllString(condition, "")
	switch strings.ToLower(strings.TrimSpace(condition)) {
	case "clinical", "trials", "studies", "research",
		"any", "other", "more", "the", "there":
		return ""
	}
	return strings.TrimSpace(condition)
}

func cleanLocationText(location string) string {
	location = locationNearMeRE.ReplaceAllString(location, "")
	location = locationPrepPrefixRE.ReplaceAllString(location, "")
	return strings.TrimSpace(whitespaceRunRE.ReplaceAllString(location, " "))
}
