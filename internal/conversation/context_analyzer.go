package conversation

import (
	"fmt"
	"regexp"
	"strings"
)

// Clue types produced by the analyzer.
const (
	ClueReferentialTrial          = "referential_trial"
	ClueReferentialTrialCondition = "referential_trial_condition"
	ClueReferentialLocation       = "referential_location"
	ClueReferentialCondition      = "referential_condition"
	ClueContinuation              = "continuation"
	ClueAnswerContinuation        = "answer_continuation"
	ClueClarification             = "clarification"
	ClueImplicitTrialReference    = "implicit_trial_reference"
	ClueImplicitLocation          = "implicit_location"
	ClueImplicitCondition         = "implicit_condition"
	ClueRapidEngagement           = "rapid_engagement"
)

// inferThreshold gates promotion of a clue's data into the turn's working
// set; weaker clues are surfaced but not auto-applied.
const inferThreshold = 0.8

// Clue is one weak signal found in the message or history.
type Clue struct {
	Type       string         `json:"type"`
	Confidence float64        `json:"confidence"`
	Evidence   string         `json:"evidence"`
	Inferred   map[string]any `json:"inferred,omitempty"`
}

var referentialWords = map[string]struct{}{
	"that": {}, "this": {}, "the": {}, "it": {}, "they": {}, "those": {},
	"these": {}, "same": {}, "previous": {}, "mentioned": {}, "above": {},
	"earlier": {},
}

var continuationWords = map[string]struct{}{
	"also": {}, "and": {}, "plus": {}, "additionally": {}, "furthermore": {},
	"another": {}, "other": {}, "else": {}, "more": {},
}

var clarificationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`i mean(?:t)?`),
	regexp.MustCompile(`what i mean(?:t)? (?:is|was)`),
	regexp.MustCompile(`to clarify`),
	regexp.MustCompile(`specifically`),
	regexp.MustCompile(`in particular`),
	regexp.MustCompile(`especially`),
}

var topicTrialRE = regexp.MustCompile(`(\w+)\s+trial`)

// ContextAnalyzer inspects conversation history for referential,
// continuation, and clarification cues. Stateless.
type ContextAnalyzer struct{}

// NewContextAnalyzer returns an analyzer ready for use.
func NewContextAnalyzer() *ContextAnalyzer {
	return &ContextAnalyzer{}
}

// Analyze finds contextual clues for the message.
func (a *ContextAnalyzer) Analyze(message string, ctx *Context) []Clue {
	if ctx == nil {
		return nil
	}
	lower := strings.ToLower(message)

	var clues []Clue
	clues = append(clues, a.referentialClues(lower, ctx)...)
	clues = append(clues, a.continuationClues(lower, ctx)...)
	clues = append(clues, a.clarificationClues(lower, ctx)...)
	clues = append(clues, a.implicitClues(lower, ctx)...)
	clues = append(clues, a.timingClues(ctx)...)
	return clues
}

func (a *ContextAnalyzer) referentialClues(message string, ctx *Context) []Clue {
	var found []string
	for _, word := range strings.Fields(message) {
		if _, ok := referentialWords[word]; ok {
			found = append(found, word)
		}
	}
	if len(found) == 0 {
		return nil
	}

	var clues []Clue
	mentionsTrial := strings.Contains(message, "trial") || strings.Contains(message, "study")
	if mentionsTrial {
		if len(ctx.LastShownTrials) > 0 {
			clues = append(clues, Clue{
				Type:       ClueReferentialTrial,
				Confidence: 0.9,
				Evidence:   fmt.Sprintf("uses %q with a trial mention", found[0]),
				Inferred:   map[string]any{"referring_to": "last_shown_trials", "trials": ctx.LastShownTrials},
			})
		} else if ctx.FocusCondition != "" {
			clues = append(clues, Clue{
				Type:       ClueReferentialTrialCondition,
				Confidence: 0.8,
				Evidence:   fmt.Sprintf("uses %q with a trial mention and a focus condition", found[0]),
				Inferred:   map[string]any{"condition": ctx.FocusCondition, "location": ctx.FocusLocation},
			})
		}
	}

	if containsAny(message, "location", "place", "city", "there") && len(ctx.MentionedLocations) > 0 {
		clues = append(clues, Clue{
			Type:       ClueReferentialLocation,
			Confidence: 0.85,
			Evidence:   "referential word with location context",
			Inferred:   map[string]any{"location": recentMention(ctx.FocusLocation, ctx.MentionedLocations)},
		})
	}

	conditionWorded := containsAny(message, "condition", "disease", "illness")
	if (conditionWorded || !containsAny(message, "trial", "location")) && len(ctx.MentionedConditions) > 0 {
		clues = append(clues, Clue{
			Type:       ClueReferentialCondition,
			Confidence: 0.8,
			Evidence:   "referential word with condition context",
			Inferred:   map[string]any{"condition": recentMention(ctx.FocusCondition, ctx.MentionedConditions)},
		})
	}

	return clues
}

func (a *ContextAnalyzer) continuationClues(message string, ctx *Context) []Clue {
	var clues []Clue

	var found []string
	for _, word := range strings.Fields(message) {
		if _, ok := continuationWords[word]; ok {
			found = append(found, word)
		}
	}
	if len(found) > 0 && len(ctx.History) > 0 {
		if topic := topicFromTurn(ctx.History[len(ctx.History)-1]); topic != "" {
			clues = append(clues, Clue{
				Type:       ClueContinuation,
				Confidence: 0.85,
				Evidence:   fmt.Sprintf("uses continuation word %q", found[0]),
				Inferred:   map[string]any{"continuing_topic": topic, "continuation_word": found[0]},
			})
		}
	}

	// A short message right after a bot question is almost always an answer.
	if len(strings.Fields(message)) <= 3 && len(ctx.History) > 0 {
		lastResponse := ctx.History[len(ctx.History)-1].BotResponse
		if strings.Contains(lastResponse, "?") {
			clues = append(clues, Clue{
				Type:       ClueAnswerContinuation,
				Confidence: 0.9,
				Evidence:   "short message following bot question",
				Inferred:   map[string]any{"answering_question": true, "question": lastResponse},
			})
		}
	}

	return clues
}

func (a *ContextAnalyzer) clarificationClues(message string, ctx *Context) []Clue {
	for _, re := range clarificationPatterns {
		if !re.MatchString(message) {
			continue
		}
		for i := len(ctx.History) - 1; i >= 0; i-- {
			if ctx.History[i].UserMessage != "" {
				return []Clue{{
					Type:       ClueClarification,
					Confidence: 0.9,
					Evidence:   "clarification phrasing",
					Inferred:   map[string]any{"clarifying_message": ctx.History[i].UserMessage},
				}}
			}
		}
		return nil
	}
	return nil
}

func (a *ContextAnalyzer) implicitClues(message string, ctx *Context) []Clue {
	var clues []Clue

	if containsAny(message, "eligible", "qualify") &&
		len(ctx.LastShownTrials) > 0 && !strings.Contains(message, "trial") {
		clues = append(clues, Clue{
			Type:       ClueImplicitTrialReference,
			Confidence: 0.85,
			Evidence:   "eligibility question without trial mention",
			Inferred:   map[string]any{"likely_about": "last_shown_trials", "trials": ctx.LastShownTrials},
		})
	}

	if strings.Contains(message, "trials") && !strings.Contains(message, "in") && ctx.FocusLocation != "" {
		clues = append(clues, Clue{
			Type:       ClueImplicitLocation,
			Confidence: 0.8,
			Evidence:   "trial query without location",
			Inferred:   map[string]any{"assumed_location": ctx.FocusLocation},
		})
	}

	if containsAny(message, "trial", "study", "research") &&
		ctx.FocusCondition != "" && !strings.Contains(message, strings.ToLower(ctx.FocusCondition)) {
		clues = append(clues, Clue{
			Type:       ClueImplicitCondition,
			Confidence: 0.75,
			Evidence:   "trial query without condition mention",
			Inferred:   map[string]any{"assumed_condition": ctx.FocusCondition},
		})
	}

	return clues
}

func (a *ContextAnalyzer) timingClues(ctx *Context) []Clue {
	if len(ctx.History) < 2 {
		return nil
	}
	recent := ctx.History
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	var total float64
	var count int
	for i := 1; i < len(recent); i++ {
		if recent[i].Timestamp.IsZero() || recent[i-1].Timestamp.IsZero() {
			continue
		}
		total += recent[i].Timestamp.Sub(recent[i-1].Timestamp).Seconds()
		count++
	}
	if count == 0 {
		return nil
	}
	avg := total / float64(count)
	if avg >= 30 {
		return nil
	}
	return []Clue{{
		Type:       ClueRapidEngagement,
		Confidence: 0.7,
		Evidence:   fmt.Sprintf("average response time %.1fs", avg),
		Inferred:   map[string]any{"engagement_level": "high", "likely_continuing_flow": true},
	}}
}

// Infer promotes high-confidence clue data into a working set the
// understanding stage can consult alongside extracted entities.
func (a *ContextAnalyzer) Infer(message string, ctx *Context, clues []Clue) map[string]any {
	inferred := map[string]any{}

	for _, clue := range clues {
		switch clue.Type {
		case ClueReferentialTrial:
			if clue.Confidence >= inferThreshold {
				inferred["referring_to_trials"] = clue.Inferred["trials"]
			}
		case ClueReferentialLocation:
			if clue.Confidence >= inferThreshold {
				inferred["likely_location"] = clue.Inferred["location"]
			}
		case ClueReferentialCondition:
			if clue.Confidence >= inferThreshold {
				inferred["likely_condition"] = clue.Inferred["condition"]
			}
		case ClueImplicitLocation:
			if _, have := inferred["likely_location"]; !have {
				inferred["likely_location"] = clue.Inferred["assumed_location"]
			}
		case ClueImplicitCondition:
			if _, have := inferred["likely_condition"]; !have {
				inferred["likely_condition"] = clue.Inferred["assumed_condition"]
			}
		}
	}

	if ctx != nil && strings.Contains(strings.ToLower(message), "eligible") && len(ctx.LastShownTrials) > 0 {
		inferred["eligibility_context"] = "last_shown_trials"
	}

	return inferred
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// recentMention resolves the most recently mentioned member of a set. The
// current focus is the latest mention whenever it is still in the set; the
// sorted tail is only a fallback for contexts restored without a focus.
func recentMention(focus string, set StringSet) string {
	if focus != "" && set.Has(focus) {
		return focus
	}
	values := set.Values()
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

func topicFromTurn(turn HistoryEntry) string {
	response := strings.ToLower(turn.BotResponse)
	if strings.Contains(response, "trial") {
		if m := topicTrialRE.FindStringSubmatch(response); m != nil {
			return m[1] + "_trial"
		}
	}
	if containsAny(response, "location", "where") {
		return "location"
	}
	if containsAny(response, "condition", "diagnosis") {
		return "condition"
	}
	if containsAny(response, "eligible", "qualify") {
		return "eligibility"
	}
	return ""
}
