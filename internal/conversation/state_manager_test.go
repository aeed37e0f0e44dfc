package conversation

import (
	"testing"
)

func TestTransitionToValidEdge(t *testing.T) {
	m := NewStateManager(nil)

	if !m.TransitionTo(StatePrescreeningActive, "test") {
		t.Fatal("idle -> prescreening_active should be allowed")
	}
	if m.Current() != StatePrescreeningActive {
		t.Errorf("current = %s, want %s", m.Current(), StatePrescreeningActive)
	}
	if len(m.History()) != 1 || m.History()[0].State != StateIdle {
		t.Errorf("history should record the idle visit, got %+v", m.History())
	}
}

func TestTransitionToInvalidEdgeLeavesStateUntouched(t *testing.T) {
	m := NewStateManager(nil)

	if m.TransitionTo(StateAwaitingFlares, "test") {
		t.Fatal("idle -> awaiting_flares should be rejected")
	}
	if m.Current() != StateIdle {
		t.Errorf("current = %s, want %s after rejected transition", m.Current(), StateIdle)
	}
	if len(m.History()) != 0 {
		t.Errorf("rejected transition must not touch history, got %+v", m.History())
	}
}

func TestValidTransitionTable(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want bool
	}{
		{StateIdle, StatePrescreeningActive, true},
		{StateIdle, StateTrialsShown, true},
		{StateIdle, StateCompleted, false},
		{StateAwaitingAge, StateAwaitingDiagnosis, true},
		{StateAwaitingAge, StateAwaitingFlares, false},
		{StateAwaitingLocation, StateAwaitingCondition, true},
		{StateTrialsShown, StatePrescreeningActive, true},
		{StateCompleted, StateIdle, true},
		{StateCompleted, StateAwaitingAge, false},
	}

	for _, tt := range tests {
		m := NewStateManager(nil)
		m.ForceState(tt.from)
		if got := m.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStateManagerFromContextRepairsBadState(t *testing.T) {
	ctx := NewContext("s1")
	ctx.State = State("bogus")

	m := StateManagerFromContext(ctx, nil)
	if m.Current() != StateIdle {
		t.Errorf("current = %s, want idle for unknown state", m.Current())
	}
}

func TestIsInPrescreeningAndAwaitingInput(t *testing.T) {
	m := NewStateManager(nil)

	m.ForceState(StateAwaitingMedications)
	if !m.IsInPrescreening() {
		t.Error("awaiting_medications should count as prescreening")
	}
	if !m.IsAwaitingInput() {
		t.Error("awaiting_medications should count as awaiting input")
	}

	m.ForceState(StateTrialsShown)
	if m.IsInPrescreening() {
		t.Error("trials_shown is not a prescreening state")
	}
	if m.IsAwaitingInput() {
		t.Error("trials_shown is not awaiting input")
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	m := NewStateManager(nil)
	m.TransitionTo(StatePrescreeningActive, "test")
	m.TransitionTo(StateAwaitingAge, "test")

	m.Reset()
	if m.Current() != StateIdle {
		t.Errorf("current = %s, want idle after reset", m.Current())
	}
	if len(m.History()) != 0 {
		t.Error("reset should drop history")
	}
}

func TestIsIntentValidForStateDefaults(t *testing.T) {
	m := NewStateManager(nil)
	m.ForceState(StateAwaitingAge)

	if !m.IsIntentValid(IntentAgeAnswer) {
		t.Error("age_answer should be valid in awaiting_age")
	}
	if !m.IsIntentValid(IntentGeneralQuery) {
		t.Error("general_query is valid everywhere")
	}
	if m.IsIntentValid(IntentTrialSearch) {
		t.Error("trial_search is not expected in awaiting_age")
	}
}
