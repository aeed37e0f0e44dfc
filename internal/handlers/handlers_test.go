package handlers

import (
	"context"
	"strings"
	"testing"

	"github.com/trialscout/trialchat/internal/conversation"
	"github.com/trialscout/trialchat/internal/trials"
)

type fakeSearcher struct {
	trials     []trials.Trial
	conditions []string
	locations  []string
	err        error

	lastCondition string
	lastLocation  string
}

var _ trials.Searcher = (*fakeSearcher)(nil)

func (f *fakeSearcher) SearchByConditionAndLocation(_ context.Context, condition, location string, limit int) ([]trials.Trial, error) {
	f.lastCondition, f.lastLocation = condition, location
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.trials) {
		return f.trials[:limit], nil
	}
	return f.trials, nil
}

func (f *fakeSearcher) SearchByLocation(_ context.Context, location string, _ int) ([]trials.Trial, error) {
	f.lastLocation = location
	return f.trials, f.err
}

func (f *fakeSearcher) ConditionsInLocation(_ context.Context, location string, _ int) ([]string, error) {
	f.lastLocation = location
	return f.conditions, f.err
}

func (f *fakeSearcher) LocationsWithCondition(_ context.Context, condition, _ string, _ int) ([]string, error) {
	f.lastCondition = condition
	return f.locations, f.err
}

var goutTrial = trials.Trial{
	ID:               "trial-1",
	Name:             "Gout Flare Study",
	Conditions:       "gout",
	SiteLocation:     "Tulsa",
	InvestigatorName: "Dr. Chen",
	BriefSummary:     "A study of flare prevention in adults with gout.",
}

func searchHandler(s *fakeSearcher) *TrialSearchHandler {
	return NewTrialSearchHandler(s, trials.NewFallback(s), testLogger())
}

func TestSearchWithBothCriteriaShowsTrials(t *testing.T) {
	s := &fakeSearcher{trials: []trials.Trial{goutTrial}}
	h := searchHandler(s)
	c := conversation.NewContext("sess-1")
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "find gout trials in tulsa",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentTrialSearch, Confidence: 0.95},
		Entities: conversation.EntityMap{
			conversation.EntityCondition: {Value: "gout", Normalized: "gout", Confidence: 0.9},
			conversation.EntityLocation:  {Value: "tulsa", Normalized: "tulsa", Confidence: 0.9},
		},
		Context: c,
		States:  states,
	})

	if !resp.Success {
		t.Fatalf("Handle failed: %s", resp.Err)
	}
	if resp.NextState != conversation.StateTrialsShown {
		t.Errorf("next state = %s, want trials_shown", resp.NextState)
	}
	if s.lastCondition != "gout" || s.lastLocation != "tulsa" {
		t.Errorf("searched (%s, %s), want (gout, tulsa)", s.lastCondition, s.lastLocation)
	}
	if !strings.Contains(resp.Message, "I found 1 gout trial in tulsa") {
		t.Errorf("message = %q", resp.Message)
	}
	shown, _ := resp.ContextUpdates["last_shown_trials"].([]conversation.TrialSummary)
	if len(shown) != 1 || shown[0].ID != "trial-1" {
		t.Errorf("last_shown_trials = %v", shown)
	}
}

func TestSearchConditionOnlyAsksForLocation(t *testing.T) {
	h := searchHandler(&fakeSearcher{})
	c := conversation.NewContext("sess-1")
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "any diabetes trials?",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentTrialSearch, Confidence: 0.9},
		Entities: conversation.EntityMap{
			conversation.EntityCondition: {Value: "diabetes", Normalized: "diabetes", Confidence: 0.9},
		},
		Context: c,
		States:  states,
	})

	if resp.NextState != conversation.StateAwaitingLocation {
		t.Errorf("next state = %s, want awaiting_location", resp.NextState)
	}
	if resp.ContextUpdates["focus_condition"] != "diabetes" {
		t.Errorf("focus_condition update = %v", resp.ContextUpdates["focus_condition"])
	}
}

func TestLocationAnswerCompletesSearch(t *testing.T) {
	s := &fakeSearcher{trials: []trials.Trial{goutTrial}}
	h := searchHandler(s)
	c := conversation.NewContext("sess-1")
	c.FocusCondition = "gout"
	c.State = conversation.StateAwaitingLocation
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "Tulsa",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentLocationAnswer, Confidence: 0.98},
		Entities: conversation.EntityMap{
			conversation.EntityLocation: {Value: "Tulsa", Normalized: "tulsa", Confidence: 0.9},
		},
		Context: c,
		States:  states,
	})

	if resp.NextState != conversation.StateTrialsShown {
		t.Errorf("next state = %s, want trials_shown", resp.NextState)
	}
	if s.lastCondition != "gout" {
		t.Errorf("searched condition = %s, want focus condition gout", s.lastCondition)
	}
}

func TestSearchNoResultsSuggestsAlternatives(t *testing.T) {
	s := &fakeSearcher{locations: []string{"Dallas", "Austin"}}
	h := searchHandler(s)
	c := conversation.NewContext("sess-1")
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "gout trials in nome",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentTrialSearch, Confidence: 0.95},
		Entities: conversation.EntityMap{
			conversation.EntityCondition: {Value: "gout", Normalized: "gout", Confidence: 0.9},
			conversation.EntityLocation:  {Value: "nome", Normalized: "nome", Confidence: 0.9},
		},
		Context: c,
		States:  states,
	})

	if !resp.Success {
		t.Fatalf("Handle failed: %s", resp.Err)
	}
	if !strings.Contains(resp.Message, "Dallas") {
		t.Errorf("message %q should mention alternative locations", resp.Message)
	}
	if resp.NextState != conversation.StateIdle {
		t.Errorf("next state = %s, want unchanged idle", resp.NextState)
	}
}

func TestEligibilityWithConditionAndLocationStartsPrescreening(t *testing.T) {
	s := &fakeSearcher{trials: []trials.Trial{goutTrial}}
	h := NewEligibilityHandler(s, trials.NewFallback(s), testLogger())
	c := conversation.NewContext("sess-1")
	c.FocusLocation = "tulsa"
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "am I eligible for the gout trial?",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentEligibility, Confidence: 0.95, TriggersPrescreening: true},
		Entities: conversation.EntityMap{
			conversation.EntityCondition: {Value: "gout", Normalized: "gout", Confidence: 0.9},
		},
		Context: c,
		States:  states,
	})

	if resp.NextState != conversation.StateAwaitingAge {
		t.Fatalf("next state = %s, want awaiting_age", resp.NextState)
	}
	if resp.ContextUpdates["trial_id"] != "trial-1" {
		t.Errorf("trial_id = %v, want trial-1", resp.ContextUpdates["trial_id"])
	}
	if !strings.Contains(resp.Message, "What is your age?") {
		t.Errorf("message %q should ask the first question", resp.Message)
	}
}

func TestEligibilityWithoutConditionAsksForIt(t *testing.T) {
	h := NewEligibilityHandler(&fakeSearcher{}, trials.NewFallback(&fakeSearcher{}), testLogger())
	c := conversation.NewContext("sess-1")
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "am I eligible?",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentEligibility, Confidence: 0.9},
		Context: c,
		States:  states,
	})

	if resp.NextState != conversation.StateAwaitingCondition {
		t.Errorf("next state = %s, want awaiting_condition", resp.NextState)
	}
	sd, _ := resp.ContextUpdates["state_data"].(map[string]any)
	if sd["awaiting_condition_for_eligibility"] != true {
		t.Errorf("state_data = %v, want awaiting_condition_for_eligibility", sd)
	}
}

func TestEligibilityForShownTrialUsesIt(t *testing.T) {
	h := NewEligibilityHandler(&fakeSearcher{}, trials.NewFallback(&fakeSearcher{}), testLogger())
	c := conversation.NewContext("sess-1")
	c.State = conversation.StateTrialsShown
	c.LastShownTrials = []conversation.TrialSummary{
		{ID: "trial-9", Name: "Lupus Study", Condition: "lupus", Location: "Atlanta"},
	}
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "yes, check my eligibility",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentEligibilityForShownTrial, Confidence: 0.95},
		Context: c,
		States:  states,
	})

	if resp.ContextUpdates["trial_id"] != "trial-9" {
		t.Errorf("trial_id = %v, want trial-9", resp.ContextUpdates["trial_id"])
	}
	if resp.NextState != conversation.StateAwaitingAge {
		t.Errorf("next state = %s, want awaiting_age", resp.NextState)
	}
}

func TestTrialInfoShowsDetails(t *testing.T) {
	s := &fakeSearcher{trials: []trials.Trial{goutTrial}}
	h := NewTrialInfoHandler(s, trials.NewFallback(s), testLogger())
	c := conversation.NewContext("sess-1")
	c.FocusLocation = "tulsa"
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "tell me about the gout trial",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentTrialInfoRequest, Confidence: 0.95},
		Entities: conversation.EntityMap{
			conversation.EntityCondition: {Value: "gout", Normalized: "gout", Confidence: 0.9},
		},
		Context: c,
		States:  states,
	})

	if resp.NextState != conversation.StateTrialsShown {
		t.Errorf("next state = %s, want trials_shown", resp.NextState)
	}
	if resp.ContextUpdates["just_showed_trial_info"] != true {
		t.Errorf("just_showed_trial_info = %v, want true", resp.ContextUpdates["just_showed_trial_info"])
	}
	if !strings.Contains(resp.Message, "Dr. Chen") {
		t.Errorf("message %q should include the investigator", resp.Message)
	}
}

func TestTrialInfoWithoutConditionAsksWhich(t *testing.T) {
	h := NewTrialInfoHandler(&fakeSearcher{}, trials.NewFallback(&fakeSearcher{}), testLogger())
	c := conversation.NewContext("sess-1")
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "tell me about the trial",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentTrialInfoRequest, Confidence: 0.9},
		Context: c,
		States:  states,
	})

	sd, _ := resp.ContextUpdates["state_data"].(map[string]any)
	if sd["awaiting_trial_specification"] != true {
		t.Errorf("state_data = %v, want awaiting_trial_specification", sd)
	}
}

func TestPersonalConditionAsksLocation(t *testing.T) {
	h := NewPersonalConditionHandler(&fakeSearcher{}, testLogger())
	c := conversation.NewContext("sess-1")
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "I have psoriasis",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentPersonalCondition, Confidence: 0.9},
		Entities: conversation.EntityMap{
			conversation.EntityCondition: {Value: "psoriasis", Normalized: "psoriasis", Confidence: 0.9},
		},
		Context: c,
		States:  states,
	})

	if resp.NextState != conversation.StateAwaitingLocation {
		t.Errorf("next state = %s, want awaiting_location", resp.NextState)
	}
	if !strings.Contains(resp.Message, "sorry to hear") {
		t.Errorf("message %q should acknowledge the condition", resp.Message)
	}
}

func TestPersonalConditionWithLocationOffersEligibility(t *testing.T) {
	s := &fakeSearcher{trials: []trials.Trial{goutTrial}}
	h := NewPersonalConditionHandler(s, testLogger())
	c := conversation.NewContext("sess-1")
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "I have gout and I live in tulsa",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentPersonalCondition, Confidence: 0.9},
		Entities: conversation.EntityMap{
			conversation.EntityCondition: {Value: "gout", Normalized: "gout", Confidence: 0.9},
			conversation.EntityLocation:  {Value: "tulsa", Normalized: "tulsa", Confidence: 0.9},
		},
		Context: c,
		States:  states,
	})

	if resp.NextState != conversation.StateAwaitingConfirmation {
		t.Errorf("next state = %s, want awaiting_confirmation", resp.NextState)
	}
	if resp.ContextUpdates["trial_id"] != "trial-1" {
		t.Errorf("trial_id = %v, want trial-1", resp.ContextUpdates["trial_id"])
	}
}

func TestGeneralFallbackWithoutModel(t *testing.T) {
	h := NewGeneralHandler(nil, testLogger())
	c := conversation.NewContext("sess-1")
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "hello",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentGeneralQuery, Confidence: 0.5},
		Context: c,
		States:  states,
	})

	if !resp.Success {
		t.Fatalf("Handle failed: %s", resp.Err)
	}
	if resp.NextState != conversation.StateIdle {
		t.Errorf("next state = %s, want idle unchanged", resp.NextState)
	}
	if resp.Message == "" {
		t.Error("expected a canned reply")
	}
}

func TestGeneralRoutesLateTrialCriteria(t *testing.T) {
	h := NewGeneralHandler(nil, testLogger())
	c := conversation.NewContext("sess-1")
	c.StateData["awaiting_trial_criteria"] = true
	states := conversation.StateManagerFromContext(c, nil)

	resp := h.Handle(context.Background(), Request{
		Message: "my mom has lupus",
		Intent:  conversation.DetectedIntent{Type: conversation.IntentGeneralQuery, Confidence: 0.5},
		Context: c,
		States:  states,
	})

	if resp.ContextUpdates["focus_condition"] != "lupus" {
		t.Errorf("focus_condition = %v, want lupus", resp.ContextUpdates["focus_condition"])
	}
	if resp.NextState != conversation.StateAwaitingLocation {
		t.Errorf("next state = %s, want awaiting_location", resp.NextState)
	}
}

func TestRegistryResolvesByStateAndIntent(t *testing.T) {
	s := &fakeSearcher{}
	reg := NewDefaultRegistry(s, trials.NewFallback(s), nil, testLogger())

	idle := conversation.NewContext("sess-1")
	awaitingAge := conversation.NewContext("sess-2")
	awaitingAge.State = conversation.StateAwaitingAge
	forEligibility := conversation.NewContext("sess-3")
	forEligibility.State = conversation.StateAwaitingCondition
	forEligibility.StateData["awaiting_condition_for_eligibility"] = true

	tests := []struct {
		name   string
		intent conversation.IntentType
		ctx    *conversation.Context
		want   string
	}{
		{"search", conversation.IntentTrialSearch, idle, "*handlers.TrialSearchHandler"},
		{"age answer in screening", conversation.IntentAgeAnswer, awaitingAge, "*handlers.PrescreeningHandler"},
		{"eligibility", conversation.IntentEligibility, idle, "*handlers.EligibilityHandler"},
		{"condition answer for eligibility", conversation.IntentConditionAnswer, forEligibility, "*handlers.EligibilityHandler"},
		{"general catch-all", conversation.IntentGeneralQuery, idle, "*handlers.GeneralHandler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := reg.Resolve(conversation.DetectedIntent{Type: tt.intent, Confidence: 0.9}, tt.ctx)
			if h == nil {
				t.Fatal("no handler resolved")
			}
			if got := typeName(h); got != tt.want {
				t.Errorf("resolved %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(h Handler) string {
	switch h.(type) {
	case *TrialSearchHandler:
		return "*handlers.TrialSearchHandler"
	case *PrescreeningHandler:
		return "*handlers.PrescreeningHandler"
	case *EligibilityHandler:
		return "*handlers.EligibilityHandler"
	case *TrialInfoHandler:
		return "*handlers.TrialInfoHandler"
	case *PersonalConditionHandler:
		return "*handlers.PersonalConditionHandler"
	case *GeneralHandler:
		return "*handlers.GeneralHandler"
	}
	return "unknown"
}
