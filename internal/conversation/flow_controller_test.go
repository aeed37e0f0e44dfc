package conversation

import (
	"testing"
)

func TestHandleIntentStartsPrescreening(t *testing.T) {
	fc := NewFlowController(NewStateManager(nil), nil)
	ctx := NewContext("s1")
	ctx.FocusCondition = "lupus"
	ctx.FocusLocation = "boston"

	res := fc.HandleIntent(IntentEligibility, ctx)
	if !res.Success {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if res.CurrentState != StatePrescreeningActive {
		t.Errorf("state = %s, want %s", res.CurrentState, StatePrescreeningActive)
	}
	if len(res.Actions) != 1 || res.Actions[0].Type != ActionStartPrescreening {
		t.Errorf("expected a start_prescreening action, got %+v", res.Actions)
	}
	if res.Actions[0].Data["condition"] != "lupus" {
		t.Errorf("action data condition = %v, want lupus", res.Actions[0].Data["condition"])
	}
}

func TestHandleIntentSearchWithoutLocationAsksForIt(t *testing.T) {
	fc := NewFlowController(NewStateManager(nil), nil)
	ctx := NewContext("s1")
	ctx.FocusCondition = "diabetes"

	res := fc.HandleIntent(IntentTrialSearch, ctx)
	if res.CurrentState != StateAwaitingLocation {
		t.Errorf("state = %s, want %s", res.CurrentState, StateAwaitingLocation)
	}
}

func TestHandleIntentSearchWithBothStaysPut(t *testing.T) {
	fc := NewFlowController(NewStateManager(nil), nil)
	ctx := NewContext("s1")
	ctx.FocusCondition = "diabetes"
	ctx.FocusLocation = "atlanta"

	res := fc.HandleIntent(IntentTrialSearch, ctx)
	if !res.NoTransition {
		t.Errorf("expected no transition when condition and location are known, got %+v", res)
	}
	if res.CurrentState != StateIdle {
		t.Errorf("state = %s, want idle", res.CurrentState)
	}
}

func TestHandleIntentLocationAnswerThenCondition(t *testing.T) {
	m := NewStateManager(nil)
	m.ForceState(StateAwaitingLocation)
	fc := NewFlowController(m, nil)
	ctx := NewContext("s1")
	ctx.State = StateAwaitingLocation

	res := fc.HandleIntent(IntentLocationAnswer, ctx)
	if res.CurrentState != StateAwaitingCondition {
		t.Errorf("state = %s, want %s when condition still missing", res.CurrentState, StateAwaitingCondition)
	}
}

func TestHandleIntentLocationAnswerCompletesContext(t *testing.T) {
	m := NewStateManager(nil)
	m.ForceState(StateAwaitingLocation)
	fc := NewFlowController(m, nil)
	ctx := NewContext("s1")
	ctx.State = StateAwaitingLocation
	ctx.FocusCondition = "psoriasis"

	res := fc.HandleIntent(IntentLocationAnswer, ctx)
	if res.CurrentState != StateIdle {
		t.Errorf("state = %s, want idle when both slots filled", res.CurrentState)
	}
}

func TestHandleIntentPrescreeningAdvancesQuestionQueue(t *testing.T) {
	m := NewStateManager(nil)
	m.ForceState(StatePrescreeningActive)
	fc := NewFlowController(m, nil)
	ctx := NewContext("s1")
	ctx.State = StatePrescreeningActive
	ctx.RemainingQuestions = []string{"diagnosis_confirmed", "flare_frequency"}

	res := fc.HandleIntent(IntentAgeAnswer, ctx)
	if res.CurrentState != StateAwaitingDiagnosis {
		t.Errorf("state = %s, want %s", res.CurrentState, StateAwaitingDiagnosis)
	}
}

func TestHandleIntentPrescreeningCompletes(t *testing.T) {
	m := NewStateManager(nil)
	m.ForceState(StatePrescreeningActive)
	fc := NewFlowController(m, nil)
	ctx := NewContext("s1")
	ctx.State = StatePrescreeningActive
	ctx.CollectedData["age"] = 42
	ctx.CollectedData["diagnosis_confirmed"] = true

	res := fc.HandleIntent(IntentYesNoAnswer, ctx)
	if res.CurrentState != StateCompleted {
		t.Fatalf("state = %s, want %s", res.CurrentState, StateCompleted)
	}
	if len(res.Actions) != 1 || res.Actions[0].Type != ActionEvaluateEligibility {
		t.Errorf("expected evaluate_eligibility action, got %+v", res.Actions)
	}
}

func TestHandleIntentEligibilityDuringAwaitingSwitchesContext(t *testing.T) {
	m := NewStateManager(nil)
	m.ForceState(StateAwaitingFlares)
	fc := NewFlowController(m, nil)
	ctx := NewContext("s1")
	ctx.State = StateAwaitingFlares

	// eligibility is not in the expected set for awaiting_flares
	res := fc.HandleIntent(IntentEligibility, ctx)
	if !res.Success || !res.AllowIntent {
		t.Fatalf("recovery should allow the intent: %+v", res)
	}
	if res.RecoveryStrategy != RecoveryContextSwitch {
		t.Errorf("strategy = %s, want %s", res.RecoveryStrategy, RecoveryContextSwitch)
	}
	if len(res.Actions) != 1 || res.Actions[0].Type != ActionClearAwaitingFlags {
		t.Errorf("expected clear_awaiting_flags action, got %+v", res.Actions)
	}
}

func TestHandleIntentUnexpectedAnswerRoutesThrough(t *testing.T) {
	m := NewStateManager(nil)
	m.ForceState(StateAwaitingDiagnosis)
	fc := NewFlowController(m, nil)
	ctx := NewContext("s1")
	ctx.State = StateAwaitingDiagnosis

	res := fc.HandleIntent(IntentLocationAnswer, ctx)
	if res.RecoveryStrategy != RecoveryAnswerRouting {
		t.Errorf("strategy = %s, want %s", res.RecoveryStrategy, RecoveryAnswerRouting)
	}
	if !res.AllowIntent {
		t.Error("answer routing must allow the intent")
	}
}

func TestHandleTimeoutRecoversToIdle(t *testing.T) {
	m := NewStateManager(nil)
	m.ForceState(StateAwaitingMedications)
	fc := NewFlowController(m, nil)

	got := fc.HandleTimeout()
	if got != StateIdle {
		t.Errorf("state = %s, want idle after timeout", got)
	}
}

func TestAbandonmentMessages(t *testing.T) {
	if AbandonmentMessage(StateAwaitingAge) == AbandonmentMessage(StateTrialsShown) {
		t.Error("awaiting_age should carry a specific abandonment message")
	}
	if AbandonmentMessage(StateTrialsShown) == "" {
		t.Error("unknown states still need a fallback message")
	}
}

func TestCheckTransitionCondition(t *testing.T) {
	ctx := NewContext("s1")

	if CheckTransitionCondition(CondHasTrialOrContext, ctx) {
		t.Error("empty context should not satisfy has_trial_or_context")
	}
	ctx.TrialID = "NCT001"
	if !CheckTransitionCondition(CondHasTrialOrContext, ctx) {
		t.Error("trial id alone satisfies has_trial_or_context")
	}

	ctx.CollectedData["age"] = 40
	ctx.CollectedData["diagnosis_confirmed"] = true
	if !CheckTransitionCondition(CondPrescreeningComplete, ctx) {
		t.Error("age plus diagnosis with no remaining questions completes prescreening")
	}
	ctx.RemainingQuestions = []string{"flare_frequency"}
	if CheckTransitionCondition(CondPrescreeningComplete, ctx) {
		t.Error("remaining questions block completion")
	}

	if !CheckTransitionCondition("unknown_rule", ctx) {
		t.Error("unknown conditions pass through")
	}
}

func TestRequiresContextPreservation(t *testing.T) {
	if !RequiresContextPreservation(StatePrescreeningActive, StateAwaitingAge) {
		t.Error("prescreening question transitions preserve context")
	}
	if RequiresContextPreservation(StateIdle, StateTrialsShown) {
		t.Error("idle to trials_shown does not preserve context")
	}
}
