package trials

import (
	"context"
	"strings"
	"testing"
)

type stubSearcher struct {
	nearby     []string
	conditions []string
}

func (s *stubSearcher) SearchByConditionAndLocation(ctx context.Context, condition, location string, limit int) ([]Trial, error) {
	return nil, nil
}

func (s *stubSearcher) SearchByLocation(ctx context.Context, location string, limit int) ([]Trial, error) {
	return nil, nil
}

func (s *stubSearcher) ConditionsInLocation(ctx context.Context, location string, limit int) ([]string, error) {
	return s.conditions, nil
}

func (s *stubSearcher) LocationsWithCondition(ctx context.Context, condition, excludeLocation string, limit int) ([]string, error) {
	return s.nearby, nil
}

func TestSuggestAlternativesNearbyLocations(t *testing.T) {
	f := NewFallback(&stubSearcher{nearby: []string{"Dallas, TX", "Oklahoma City, OK"}})

	msg := f.SuggestAlternatives(context.Background(), "gout", "tulsa")
	if !strings.Contains(msg, "nearby locations") {
		t.Errorf("expected nearby location suggestions, got: %s", msg)
	}
	if !strings.Contains(msg, "Dallas, TX") {
		t.Errorf("expected Dallas in suggestions, got: %s", msg)
	}
}

func TestSuggestAlternativesOtherConditions(t *testing.T) {
	f := NewFallback(&stubSearcher{conditions: []string{"Migraine", "Psoriasis"}})

	msg := f.SuggestAlternatives(context.Background(), "gout", "tulsa")
	if !strings.Contains(msg, "we currently have trials for") {
		t.Errorf("expected available condition suggestions, got: %s", msg)
	}
	if !strings.Contains(msg, "Migraine") {
		t.Errorf("expected Migraine in suggestions, got: %s", msg)
	}
}

func TestSuggestAlternativesGeneric(t *testing.T) {
	f := NewFallback(&stubSearcher{})

	msg := f.SuggestAlternatives(context.Background(), "gout", "tulsa")
	if !strings.Contains(msg, "different location") {
		t.Errorf("expected generic fallback, got: %s", msg)
	}
}
