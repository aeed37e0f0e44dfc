package conversation

import (
	"testing"
	"time"
)

func clueOfType(clues []Clue, typ string) (Clue, bool) {
	for _, c := range clues {
		if c.Type == typ {
			return c, true
		}
	}
	return Clue{}, false
}

func TestAnalyzeReferentialTrial(t *testing.T) {
	a := NewContextAnalyzer()
	ctx := NewContext("s1")
	ctx.LastShownTrials = []TrialSummary{{ID: "trial-1", Name: "Gout Study"}}

	clues := a.Analyze("tell me more about that trial", ctx)
	clue, ok := clueOfType(clues, ClueReferentialTrial)
	if !ok {
		t.Fatal("expected a referential trial clue")
	}
	if clue.Confidence < 0.9 {
		t.Errorf("confidence = %.2f, want >= 0.9", clue.Confidence)
	}
}

func TestAnalyzeReferentialConditionFallsBackToMentions(t *testing.T) {
	a := NewContextAnalyzer()
	ctx := NewContext("s1")
	ctx.MentionedConditions.Add("gout")

	clues := a.Analyze("what is that exactly?", ctx)
	clue, ok := clueOfType(clues, ClueReferentialCondition)
	if !ok {
		t.Fatal("expected a referential condition clue")
	}
	if clue.Inferred["condition"] != "gout" {
		t.Errorf("inferred condition = %v, want gout", clue.Inferred["condition"])
	}
}

func TestAnalyzeReferentialConditionPrefersLatestMention(t *testing.T) {
	a := NewContextAnalyzer()
	ctx := NewContext("s1")
	ctx.MentionedConditions.Add("gout")
	ctx.MentionedConditions.Add("asthma")
	ctx.FocusCondition = "asthma"

	clues := a.Analyze("what is that exactly?", ctx)
	clue, ok := clueOfType(clues, ClueReferentialCondition)
	if !ok {
		t.Fatal("expected a referential condition clue")
	}
	if clue.Inferred["condition"] != "asthma" {
		t.Errorf("inferred condition = %v, want the latest mention asthma", clue.Inferred["condition"])
	}
}

func TestAnalyzeReferentialLocationPrefersLatestMention(t *testing.T) {
	a := NewContextAnalyzer()
	ctx := NewContext("s1")
	ctx.MentionedLocations.Add("tulsa")
	ctx.MentionedLocations.Add("atlanta")
	ctx.FocusLocation = "atlanta"

	clues := a.Analyze("what about that city?", ctx)
	clue, ok := clueOfType(clues, ClueReferentialLocation)
	if !ok {
		t.Fatal("expected a referential location clue")
	}
	if clue.Inferred["location"] != "atlanta" {
		t.Errorf("inferred location = %v, want the latest mention atlanta", clue.Inferred["location"])
	}
}

func TestAnalyzeShortAnswerAfterBotQuestion(t *testing.T) {
	a := NewContextAnalyzer()
	ctx := NewContext("s1")
	ctx.AppendHistory("I have gout", "What city are you in?", IntentPersonalCondition)

	clues := a.Analyze("Tulsa", ctx)
	if _, ok := clueOfType(clues, ClueAnswerContinuation); !ok {
		t.Fatal("expected an answer continuation clue")
	}
}

func TestAnalyzeNoAnswerClueWithoutQuestion(t *testing.T) {
	a := NewContextAnalyzer()
	ctx := NewContext("s1")
	ctx.AppendHistory("hello", "Welcome! I can help you find clinical trials.", IntentGeneralQuery)

	clues := a.Analyze("Tulsa", ctx)
	if _, ok := clueOfType(clues, ClueAnswerContinuation); ok {
		t.Fatal("no answer clue expected when the bot asked nothing")
	}
}

func TestAnalyzeClarification(t *testing.T) {
	a := NewContextAnalyzer()
	ctx := NewContext("s1")
	ctx.AppendHistory("show me arthritis trials", "I found 2 arthritis trials.", IntentTrialSearch)

	clues := a.Analyze("i meant rheumatoid arthritis specifically", ctx)
	clue, ok := clueOfType(clues, ClueClarification)
	if !ok {
		t.Fatal("expected a clarification clue")
	}
	if clue.Inferred["clarifying_message"] != "show me arthritis trials" {
		t.Errorf("clarifying_message = %v", clue.Inferred["clarifying_message"])
	}
}

func TestAnalyzeImplicitTrialReference(t *testing.T) {
	a := NewContextAnalyzer()
	ctx := NewContext("s1")
	ctx.LastShownTrials = []TrialSummary{{ID: "trial-1", Name: "Gout Study"}}

	clues := a.Analyze("am i eligible?", ctx)
	if _, ok := clueOfType(clues, ClueImplicitTrialReference); !ok {
		t.Fatal("expected an implicit trial reference clue")
	}
}

func TestAnalyzeRapidEngagement(t *testing.T) {
	a := NewContextAnalyzer()
	ctx := NewContext("s1")
	base := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		ctx.History = append(ctx.History, HistoryEntry{
			UserMessage: "yes",
			BotResponse: "Next question?",
			Timestamp:   base.Add(time.Duration(i*5) * time.Second),
		})
	}

	clues := a.Analyze("4 times", ctx)
	if _, ok := clueOfType(clues, ClueRapidEngagement); !ok {
		t.Fatal("expected a rapid engagement clue")
	}
}

func TestAnalyzeNilContext(t *testing.T) {
	a := NewContextAnalyzer()
	if clues := a.Analyze("anything", nil); clues != nil {
		t.Fatalf("clues = %v, want nil", clues)
	}
}

func TestInferPromotesStrongClues(t *testing.T) {
	a := NewContextAnalyzer()
	ctx := NewContext("s1")
	ctx.MentionedLocations.Add("boston")

	clues := []Clue{
		{Type: ClueReferentialLocation, Confidence: 0.85, Inferred: map[string]any{"location": "boston"}},
		{Type: ClueReferentialCondition, Confidence: 0.6, Inferred: map[string]any{"condition": "gout"}},
	}

	inferred := a.Infer("trials there", ctx, clues)
	if inferred["likely_location"] != "boston" {
		t.Errorf("likely_location = %v, want boston", inferred["likely_location"])
	}
	if _, ok := inferred["likely_condition"]; ok {
		t.Error("weak condition clue must not be promoted")
	}
}

func TestInferImplicitDoesNotOverrideReferential(t *testing.T) {
	a := NewContextAnalyzer()
	ctx := NewContext("s1")

	clues := []Clue{
		{Type: ClueReferentialLocation, Confidence: 0.85, Inferred: map[string]any{"location": "boston"}},
		{Type: ClueImplicitLocation, Confidence: 0.8, Inferred: map[string]any{"assumed_location": "denver"}},
	}

	inferred := a.Infer("trials", ctx, clues)
	if inferred["likely_location"] != "boston" {
		t.Errorf("likely_location = %v, want boston", inferred["likely_location"])
	}
}
