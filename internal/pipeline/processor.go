// Package pipeline runs the per-turn processing chain: load context, analyze,
// classify, extract, route through the state machine, handle, persist.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/trialscout/trialchat/internal/contextstore"
	"github.com/trialscout/trialchat/internal/conversation"
	"github.com/trialscout/trialchat/internal/handlers"
	"github.com/trialscout/trialchat/internal/llm"
	"github.com/trialscout/trialchat/pkg/logging"
)

// Turn is one inbound user message.
type Turn struct {
	SessionID string
	UserID    string
	Message   string
}

// Result is the pipeline's answer for one turn.
type Result struct {
	SessionID    string                      `json:"session_id"`
	Reply        string                      `json:"reply"`
	Intent       conversation.DetectedIntent `json:"intent"`
	Entities     conversation.EntityMap      `json:"entities,omitempty"`
	State        conversation.State          `json:"state"`
	QuickReplies []string                    `json:"quick_replies,omitempty"`
	Metadata     map[string]any              `json:"metadata,omitempty"`
	Cached       bool                        `json:"cached,omitempty"`
	Duration     time.Duration               `json:"-"`
}

// contextManager is what the processor needs from the context layer.
type contextManager interface {
	Get(ctx context.Context, sessionID string) (*conversation.Context, error)
	Save(ctx context.Context, c *conversation.Context) error
	Reset(ctx context.Context, sessionID string) error
}

// turnLogger records completed turns; nil disables the audit log.
type turnLogger interface {
	Log(ctx context.Context, rec contextstore.TurnRecord) error
	Recent(ctx context.Context, sessionID string, limit int) ([]contextstore.TurnRecord, error)
}

// Processor owns the understanding and orchestration stages for a turn. One
// processor serves all sessions; per-session state lives in the context.
type Processor struct {
	contexts     contextManager
	registry     *handlers.Registry
	analyzer     *conversation.ContextAnalyzer
	detector     *conversation.IntentDetector
	extractor    *conversation.EntityExtractor
	turnLog      turnLogger
	logger       *logging.Logger
	historyLimit int
}

// NewProcessor assembles the pipeline core. turnLog may be nil.
func NewProcessor(contexts contextManager, registry *handlers.Registry, turnLog turnLogger, historyLimit int, logger *logging.Logger) *Processor {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Processor{
		contexts:     contexts,
		registry:     registry,
		analyzer:     conversation.NewContextAnalyzer(),
		detector:     conversation.NewIntentDetector(),
		extractor:    conversation.NewEntityExtractor(),
		turnLog:      turnLog,
		logger:       logger,
		historyLimit: historyLimit,
	}
}

// Process runs one message through the full chain and persists the outcome.
func (p *Processor) Process(ctx context.Context, turn Turn) (*Result, error) {
	started := time.Now()
	log := p.logger.WithSession(turn.SessionID)

	c, err := p.contexts.Get(ctx, turn.SessionID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load context: %w", err)
	}
	if turn.UserID != "" {
		c.UserID = turn.UserID
	}

	// Understanding: contextual clues, intent, entities. Inferred clues land
	// in state data so the detector and handlers can consult them.
	clues := p.analyzer.Analyze(turn.Message, c)
	if inferred := p.analyzer.Infer(turn.Message, c, clues); len(inferred) > 0 {
		c.ApplyUpdates(inferred)
	}

	intent := p.detector.Detect(turn.Message, c)
	entities := p.extractor.Extract(turn.Message, intent, c)
	p.applyEntityFocus(c, entities)

	log.Info("turn classified",
		"intent", string(intent.Type), "confidence", intent.Confidence,
		"entities", len(entities), "state", string(c.State))

	// Orchestration: route the intent through the state machine, then let
	// the matching handler produce the reply.
	states := conversation.StateManagerFromContext(c, p.logger)
	flow := conversation.NewFlowController(states, p.logger)
	flowResult := flow.HandleIntent(intent.Type, c)
	p.applyFlowActions(c, flowResult)

	resp := p.dispatch(ctx, intent, handlers.Request{
		Message:  turn.Message,
		Intent:   intent,
		Entities: entities,
		Context:  c,
		States:   states,
	}, log)
	if !resp.Success && resp.Message == "" {
		// The failure stays in the log; the user gets a reply in the
		// assistant's voice that fits where the conversation was.
		if resp.Err != "" {
			log.Error("handler failed", "error", resp.Err, "intent", string(intent.Type))
		}
		resp.Success = true
		resp.Message = llm.ContextualFallback(string(states.Current()))
	}

	if len(resp.ContextUpdates) > 0 {
		c.ApplyUpdates(resp.ContextUpdates)
	}
	c.State = states.Current()

	reply := resp.Message
	if reply == "" {
		for _, action := range flowResult.Actions {
			if action.Type == conversation.ActionShowAbandonment && action.Message != "" {
				reply = action.Message
			}
		}
	}

	c.AppendHistory(turn.Message, reply, intent.Type)
	p.trimHistory(c)

	if err := p.contexts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("pipeline: save context: %w", err)
	}

	duration := time.Since(started)
	if p.turnLog != nil {
		snapshot, err := c.Marshal()
		if err != nil {
			log.Warn("context snapshot failed", "error", err)
		}
		if err := p.turnLog.Log(ctx, contextstore.TurnRecord{
			SessionID:       turn.SessionID,
			UserMessage:     turn.Message,
			BotResponse:     reply,
			Intent:          intent.Type,
			Confidence:      intent.Confidence,
			State:           c.State,
			LatencyMS:       duration.Milliseconds(),
			ContextSnapshot: json.RawMessage(snapshot),
		}); err != nil {
			log.Warn("turn log write failed", "error", err)
		}
	}

	meta := resp.Metadata
	if flowResult.RecoveryStrategy != "" {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["recovery_strategy"] = flowResult.RecoveryStrategy
	}

	return &Result{
		SessionID:    turn.SessionID,
		Reply:        reply,
		Intent:       intent,
		Entities:     entities,
		State:        c.State,
		QuickReplies: resp.QuickReplies,
		Metadata:     meta,
		Duration:     duration,
	}, nil
}

// dispatch resolves and runs the handler for the intent. A missing handler
// or a panic comes back as a failed response, never up the stack.
func (p *Processor) dispatch(ctx context.Context, intent conversation.DetectedIntent, req handlers.Request, log *logging.Logger) (resp handlers.Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", "panic", fmt.Sprint(r), "intent", string(intent.Type))
			resp = handlers.Response{}
		}
	}()

	handler := p.registry.Resolve(intent, req.Context)
	if handler == nil {
		log.Error("no handler for intent", "intent", string(intent.Type))
		return handlers.Response{}
	}
	return handler.Handle(ctx, req)
}

// Reset wipes the session's conversational memory.
func (p *Processor) Reset(ctx context.Context, sessionID string) error {
	return p.contexts.Reset(ctx, sessionID)
}

// Context exposes the stored context for a session.
func (p *Processor) Context(ctx context.Context, sessionID string) (*conversation.Context, error) {
	return p.contexts.Get(ctx, sessionID)
}

// RecentTurns returns the session's last audit-log turns, oldest first.
func (p *Processor) RecentTurns(ctx context.Context, sessionID string) ([]contextstore.TurnRecord, error) {
	if p.turnLog == nil {
		return nil, nil
	}
	return p.turnLog.Recent(ctx, sessionID, p.historyLimit)
}

// applyEntityFocus promotes directly extracted condition and location
// entities onto the session focus before routing, so the state machine sees
// the same criteria the handler will.
func (p *Processor) applyEntityFocus(c *conversation.Context, entities conversation.EntityMap) {
	// Focus fields are stored lowercase so later case-insensitive lookups
	// and dedup against the mention sets behave.
	updates := map[string]any{}
	if e, ok := entities[conversation.EntityCondition]; ok && e.Normalized != "" {
		updates["focus_condition"] = strings.ToLower(e.Normalized)
	}
	if e, ok := entities[conversation.EntityLocation]; ok && e.Normalized != "" {
		updates["focus_location"] = strings.ToLower(e.Normalized)
	}
	if e, ok := entities[conversation.EntityTrialID]; ok && e.Normalized != "" {
		updates["trial_id"] = e.Normalized
	}
	if len(updates) > 0 {
		c.ApplyUpdates(updates)
	}
}

// applyFlowActions performs the context side effects the flow reported.
func (p *Processor) applyFlowActions(c *conversation.Context, fr conversation.FlowResult) {
	for _, action := range fr.Actions {
		if action.Type != conversation.ActionClearAwaitingFlags {
			continue
		}
		for key := range c.StateData {
			if strings.HasPrefix(key, "awaiting_") {
				delete(c.StateData, key)
			}
		}
	}
}

func (p *Processor) trimHistory(c *conversation.Context) {
	if len(c.History) > p.historyLimit {
		c.History = c.History[len(c.History)-p.historyLimit:]
	}
}
