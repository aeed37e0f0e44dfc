package conversation

import (
	"testing"
)

func TestExtractConditionAndLocationFromSearch(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentTrialSearch}

	got := e.Extract("I'm looking for diabetes trials in Atlanta", intent, NewContext("s1"))

	cond, ok := got[EntityCondition]
	if !ok {
		t.Fatal("expected a condition entity")
	}
	if cond.Normalized != "diabetes" {
		t.Errorf("condition normalized = %q, want diabetes", cond.Normalized)
	}
	loc, ok := got[EntityLocation]
	if !ok {
		t.Fatal("expected a location entity")
	}
	if loc.Normalized != "Atlanta" {
		t.Errorf("location normalized = %q, want Atlanta", loc.Normalized)
	}
	if loc.Source != SourceDirect {
		t.Errorf("location source = %q, want %q", loc.Source, SourceDirect)
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentTrialSearch}
	msg := "show me gout trials in Tulsa"

	first := e.Extract(msg, intent, NewContext("s1"))
	for i := 0; i < 10; i++ {
		again := e.Extract(msg, intent, NewContext("s1"))
		if len(again) != len(first) {
			t.Fatalf("run %d produced %d entities, first run produced %d", i, len(again), len(first))
		}
		for typ, ent := range first {
			if again[typ] != ent {
				t.Fatalf("run %d: entity %s = %+v, first run %+v", i, typ, again[typ], ent)
			}
		}
	}
}

func TestExtractLocationAnswer(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentLocationAnswer}

	got := e.Extract("Boston", intent, NewContext("s1"))
	loc, ok := got[EntityLocation]
	if !ok {
		t.Fatal("expected a location entity")
	}
	if loc.Normalized != "Boston" {
		t.Errorf("location = %q, want Boston", loc.Normalized)
	}
	if loc.Source != SourceContextual {
		t.Errorf("source = %q, want %q", loc.Source, SourceContextual)
	}
}

func TestExtractLocationAnswerRejectsCondition(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentLocationAnswer}

	got := e.Extract("diabetes", intent, NewContext("s1"))
	if _, ok := got[EntityLocation]; ok {
		t.Error("condition text must not become a location")
	}
}

func TestExtractConditionAnswerStripsLeadIn(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentConditionAnswer}

	got := e.Extract("I have gout", intent, NewContext("s1"))
	cond, ok := got[EntityCondition]
	if !ok {
		t.Fatal("expected a condition entity")
	}
	if cond.Normalized != "gout" {
		t.Errorf("condition = %q, want gout", cond.Normalized)
	}
}

func TestExtractConditionNormalizesSynonyms(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentConditionAnswer}

	tests := []struct {
		message string
		want    string
	}{
		{"hypertension", "high blood pressure"},
		{"t2dm", "type 2 diabetes"},
		{"toe fungus", "fungal infection"},
		{"gouty arthritis", "gout"},
	}

	for _, tt := range tests {
		got := e.Extract(tt.message, intent, NewContext("s1"))
		cond, ok := got[EntityCondition]
		if !ok {
			t.Errorf("Extract(%q) found no condition", tt.message)
			continue
		}
		if cond.Normalized != tt.want {
			t.Errorf("Extract(%q) normalized = %q, want %q", tt.message, cond.Normalized, tt.want)
		}
	}
}

func TestExtractAge(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentAgeAnswer}

	tests := []struct {
		message string
		want    string
		found   bool
	}{
		{"35", "35", true},
		{"I'm 42 years old", "42", true},
		{"age is 67", "67", true},
		{"200", "", false},
		{"none of your business", "", false},
	}

	for _, tt := range tests {
		got := e.Extract(tt.message, intent, NewContext("s1"))
		age, ok := got[EntityAge]
		if ok != tt.found {
			t.Errorf("Extract(%q) found=%v, want %v", tt.message, ok, tt.found)
			continue
		}
		if ok && age.Normalized != tt.want {
			t.Errorf("Extract(%q) age = %q, want %q", tt.message, age.Normalized, tt.want)
		}
	}
}

func TestExtractBoolean(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentYesNoAnswer}

	tests := []struct {
		message string
		want    string
	}{
		{"yes", "true"},
		{"Yeah", "true"},
		{"i do", "true"},
		{"no", "false"},
		{"i don't", "false"},
	}

	for _, tt := range tests {
		got := e.Extract(tt.message, intent, NewContext("s1"))
		b, ok := got[EntityBoolean]
		if !ok {
			t.Errorf("Extract(%q) found no boolean", tt.message)
			continue
		}
		if b.Normalized != tt.want {
			t.Errorf("Extract(%q) = %q, want %q", tt.message, b.Normalized, tt.want)
		}
	}
}

func TestExtractNumberWithUnits(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentNumberAnswer}

	got := e.Extract("about 4 times a year", intent, NewContext("s1"))
	n, ok := got[EntityNumber]
	if !ok {
		t.Fatal("expected a number entity")
	}
	if n.Normalized != "4" {
		t.Errorf("number = %q, want 4", n.Normalized)
	}
}

func TestExtractMedicationList(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentMedicationAnswer}

	got := e.Extract("I take allopurinol and colchicine", intent, NewContext("s1"))
	med, ok := got[EntityMedication]
	if !ok {
		t.Fatal("expected a medication entity")
	}
	if med.Normalized != "allopurinol, colchicine" {
		t.Errorf("medications = %q, want %q", med.Normalized, "allopurinol, colchicine")
	}
}

func TestExtractTrialReference(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentGeneralQuery}

	got := e.Extract("tell me about trial #3", intent, NewContext("s1"))
	ref, ok := got[EntityTrialID]
	if !ok {
		t.Fatal("expected a trial reference")
	}
	if ref.Normalized != "3" {
		t.Errorf("trial ref = %q, want 3", ref.Normalized)
	}
}

func TestExtractOpportunisticConfidencePenalty(t *testing.T) {
	e := NewEntityExtractor()
	// A location-only intent still picks up the condition opportunistically.
	intent := DetectedIntent{Type: IntentLocationSearch}

	got := e.Extract("asthma trials in Denver", intent, NewContext("s1"))
	cond, ok := got[EntityCondition]
	if !ok {
		t.Fatal("expected an opportunistic condition entity")
	}
	if cond.Source != SourceOpportunistic {
		t.Errorf("source = %q, want %q", cond.Source, SourceOpportunistic)
	}
	if cond.Confidence >= 0.9 {
		t.Errorf("confidence = %.2f, want a penalty below 0.9", cond.Confidence)
	}
	if cond.Confidence < 0.5 {
		t.Errorf("confidence = %.2f, floor is 0.5", cond.Confidence)
	}
}

func TestExtractConditionWithoutLocation(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentTrialSearch}

	got := e.Extract("are there any diabetes trials?", intent, NewContext("s1"))
	cond, ok := got[EntityCondition]
	if !ok {
		t.Fatal("expected a condition entity")
	}
	if cond.Normalized != "diabetes" {
		t.Errorf("condition = %q, want diabetes", cond.Normalized)
	}
	if _, ok := got[EntityLocation]; ok {
		t.Errorf("extracted bogus location %+v", got[EntityLocation])
	}
}

func TestExtractFillsFocusFromContext(t *testing.T) {
	e := NewEntityExtractor()
	ctx := NewContext("s1")
	ctx.FocusCondition = "diabetes"
	ctx.FocusLocation = "atlanta"
	intent := DetectedIntent{Type: IntentTrialSearch}

	got := e.Extract("any other trials?", intent, ctx)
	cond, ok := got[EntityCondition]
	if !ok || cond.Source != SourceContext {
		t.Fatalf("condition = %+v, want one filled from context", cond)
	}
	loc, ok := got[EntityLocation]
	if !ok || loc.Source != SourceContext {
		t.Fatalf("location = %+v, want one filled from context", loc)
	}
}

func TestExtractLocationRejectsFalsePositives(t *testing.T) {
	e := NewEntityExtractor()
	intent := DetectedIntent{Type: IntentTrialSearch}

	got := e.Extract("what trials are available", intent, NewContext("s1"))
	if loc, ok := got[EntityLocation]; ok {
		t.Errorf("extracted bogus location %q", loc.Value)
	}
}
