// Package handlers maps classified intents to responses. Each handler owns
// one conversational concern; the registry picks the first handler whose
// CanHandle accepts the turn.
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/trialscout/trialchat/internal/conversation"
	"github.com/trialscout/trialchat/internal/llm"
	"github.com/trialscout/trialchat/internal/trials"
	"github.com/trialscout/trialchat/pkg/logging"
)

// Request bundles everything a handler needs for one turn.
type Request struct {
	Message  string
	Intent   conversation.DetectedIntent
	Entities conversation.EntityMap
	Context  *conversation.Context
	States   *conversation.StateManager
}

// Response is a handler's outcome. ContextUpdates are folded into the
// session context by the pipeline using the standard merge semantics;
// NextState is advisory and already applied through the state manager.
type Response struct {
	Success        bool
	Message        string
	NextState      conversation.State
	ContextUpdates map[string]any
	QuickReplies   []string
	Metadata       map[string]any
	Err            string
}

func (r *Response) updates() map[string]any {
	if r.ContextUpdates == nil {
		r.ContextUpdates = map[string]any{}
	}
	return r.ContextUpdates
}

func (r *Response) meta() map[string]any {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	return r.Metadata
}

// Handler processes one family of intents.
type Handler interface {
	CanHandle(intent conversation.DetectedIntent, convCtx *conversation.Context) bool
	Handle(ctx context.Context, req Request) Response
}

// Registry holds handlers and resolves the one for a turn. Intent-indexed
// handlers are consulted first, then the full list in registration order.
type Registry struct {
	handlers []Handler
	byIntent map[conversation.IntentType][]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byIntent: map[conversation.IntentType][]Handler{}}
}

// Register adds a handler, optionally indexed under specific intents.
func (r *Registry) Register(h Handler, intents ...conversation.IntentType) {
	r.handlers = append(r.handlers, h)
	for _, it := range intents {
		r.byIntent[it] = append(r.byIntent[it], h)
	}
}

// Resolve picks the handler for the turn, or nil when nothing accepts it.
func (r *Registry) Resolve(intent conversation.DetectedIntent, convCtx *conversation.Context) Handler {
	for _, h := range r.byIntent[intent.Type] {
		if h.CanHandle(intent, convCtx) {
			return h
		}
	}
	for _, h := range r.handlers {
		if h.CanHandle(intent, convCtx) {
			return h
		}
	}
	return nil
}

// NewDefaultRegistry registers the standard handler set. Registration order
// is resolution priority; the general handler goes last as the catch-all.
func NewDefaultRegistry(searcher trials.Searcher, fb *trials.Fallback, responder *llm.Responder, logger *logging.Logger) *Registry {
	r := NewRegistry()
	r.Register(NewPrescreeningHandler(logger),
		conversation.IntentAgeAnswer, conversation.IntentYesNoAnswer,
		conversation.IntentNumberAnswer, conversation.IntentMedicationAnswer)
	r.Register(NewEligibilityHandler(searcher, fb, logger),
		conversation.IntentEligibility, conversation.IntentEligibilitySpecificTrial,
		conversation.IntentEligibilityForShownTrial, conversation.IntentEligibilityFollowup)
	r.Register(NewTrialSearchHandler(searcher, fb, logger),
		conversation.IntentTrialSearch, conversation.IntentLocationSearch,
		conversation.IntentLocationAnswer, conversation.IntentConditionAnswer)
	r.Register(NewTrialInfoHandler(searcher, fb, logger),
		conversation.IntentTrialInfoRequest)
	r.Register(NewPersonalConditionHandler(searcher, logger),
		conversation.IntentPersonalCondition)
	r.Register(NewGeneralHandler(responder, logger),
		conversation.IntentGeneralQuery, conversation.IntentTrialInterest,
		conversation.IntentQuestionDuringScreening)
	return r
}

// conditionFrom resolves the condition for a turn: extracted entity first,
// then session focus, then inferred clue, then the latest mention.
func conditionFrom(entities conversation.EntityMap, c *conversation.Context) string {
	if e, ok := entities[conversation.EntityCondition]; ok && e.Normalized != "" {
		return e.Normalized
	}
	if c == nil {
		return ""
	}
	if c.FocusCondition != "" {
		return c.FocusCondition
	}
	if v := c.StateDataString("likely_condition"); v != "" {
		return v
	}
	if vals := c.MentionedConditions.Values(); len(vals) > 0 {
		return vals[len(vals)-1]
	}
	return ""
}

// locationFrom mirrors conditionFrom for locations.
func locationFrom(entities conversation.EntityMap, c *conversation.Context) string {
	if e, ok := entities[conversation.EntityLocation]; ok && e.Normalized != "" {
		return e.Normalized
	}
	if c == nil {
		return ""
	}
	if c.FocusLocation != "" {
		return c.FocusLocation
	}
	if v := c.StateDataString("likely_location"); v != "" {
		return v
	}
	if vals := c.MentionedLocations.Values(); len(vals) > 0 {
		return vals[len(vals)-1]
	}
	return ""
}

// clarificationMessage asks for whichever search criteria are still missing.
func clarificationMessage(needCondition, needLocation bool, c *conversation.Context) string {
	switch {
	case needCondition && needLocation:
		return "I'd be happy to help you find clinical trials. Could you tell me what condition you're interested in and your location?"
	case needLocation:
		condition := "that condition"
		if c != nil && c.FocusCondition != "" {
			condition = c.FocusCondition
		}
		return fmt.Sprintf("I can help you find trials for %s. What location are you interested in?", condition)
	case needCondition:
		return "What medical condition are you interested in finding trials for?"
	default:
		return "Could you provide more information about what you're looking for?"
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// formatTrialResults renders a search result list with a follow-up prompt.
func formatTrialResults(found []trials.Trial, condition, location string) string {
	if len(found) == 0 {
		return fmt.Sprintf("I couldn't find any clinical trials for %s in %s. Would you like me to search in nearby locations?", condition, location)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d %s trial%s in %s:\n\n", len(found), condition, plural(len(found)), location)

	shown := found
	if len(shown) > 3 {
		shown = shown[:3]
	}
	for _, t := range shown {
		fmt.Fprintf(&b, "**%s** trial\n", t.Conditions)
		if t.InvestigatorName != "" {
			fmt.Fprintf(&b, "*Investigator: %s*\n", t.InvestigatorName)
		}
		if t.BriefSummary != "" {
			fmt.Fprintf(&b, "%s\n", truncate(t.BriefSummary, 150))
		}
		b.WriteString("\n")
	}
	if len(found) > 3 {
		fmt.Fprintf(&b, "... and %d more.\n\n", len(found)-3)
	}

	b.WriteString("Would you like to:\n")
	b.WriteString("1. Check your eligibility for any of these trials?\n")
	b.WriteString("2. Get more details about a specific trial?")
	return b.String()
}

// trialFromContext rebuilds the trial the session is already anchored to,
// preferring the pinned trial over the most recently shown one.
func trialFromContext(c *conversation.Context) trials.Trial {
	if c == nil {
		return trials.Trial{}
	}
	t := trials.Trial{
		ID:           c.TrialID,
		Name:         c.TrialName,
		Conditions:   c.FocusCondition,
		SiteLocation: c.FocusLocation,
	}
	if t.ID == "" && len(c.LastShownTrials) > 0 {
		last := c.LastShownTrials[len(c.LastShownTrials)-1]
		t.ID = last.ID
		t.Name = last.Name
		if t.Conditions == "" {
			t.Conditions = last.Condition
		}
		if t.SiteLocation == "" {
			t.SiteLocation = last.Location
		}
	}
	return t
}

// moveTo transitions the state machine toward target when the edge exists
// and reports the state actually reached. Handlers never force states; an
// unreachable target leaves the machine where it is.
func moveTo(states *conversation.StateManager, target conversation.State, reason string) conversation.State {
	if states == nil {
		return target
	}
	if states.Current() != target {
		states.TransitionTo(target, reason)
	}
	return states.Current()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// summarize converts search results into the shape the context stores.
func summarize(found []trials.Trial, limit int) []conversation.TrialSummary {
	if len(found) > limit {
		found = found[:limit]
	}
	out := make([]conversation.TrialSummary, 0, len(found))
	for _, t := range found {
		out = append(out, conversation.TrialSummary{
			ID:        t.ID,
			Name:      t.Name,
			Condition: t.Conditions,
			Location:  t.SiteLocation,
			Phase:     t.Phase,
			Summary:   t.BriefSummary,
		})
	}
	return out
}
