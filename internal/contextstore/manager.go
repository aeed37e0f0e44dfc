package contextstore

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/trialscout/trialchat/internal/conversation"
	"github.com/trialscout/trialchat/pkg/logging"
)

// store is what the manager needs from the durable layer.
type store interface {
	Get(ctx context.Context, sessionID string) (*conversation.Context, error)
	Save(ctx context.Context, c *conversation.Context) error
	Deactivate(ctx context.Context, sessionID string) error
}

// contextCache is what the manager needs from the cache layer; nil-able.
type contextCache interface {
	Get(ctx context.Context, sessionID string) (*conversation.Context, error)
	Set(ctx context.Context, c *conversation.Context) error
	Delete(ctx context.Context, sessionID string) error
}

// Manager is the context access layer the pipeline talks to: cache in front
// of the store, expiry by age, and validation on every load. Concurrent
// turns on one session are last-write-wins.
type Manager struct {
	store   store
	cache   contextCache
	maxAge  time.Duration
	timeout time.Duration
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewManager builds a manager; cache may be nil when Redis is not configured.
// timeout caps each storage round trip so a stalled database cannot hold a
// turn open indefinitely.
func NewManager(s store, cache contextCache, maxAge, timeout time.Duration, logger *logging.Logger) *Manager {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		store:   s,
		cache:   cache,
		maxAge:  maxAge,
		timeout: timeout,
		logger:  logger,
		tracer:  otel.Tracer("contextstore"),
	}
}

// Get returns the session's context, creating a fresh one for unseen or
// expired sessions. A cache failure falls through to the store.
func (m *Manager) Get(ctx context.Context, sessionID string) (*conversation.Context, error) {
	ctx, span := m.tracer.Start(ctx, "context.get",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if m.cache != nil {
		if c, err := m.cache.Get(ctx, sessionID); err != nil {
			m.logger.Warn("context cache read failed", "error", err, "session_id", sessionID)
		} else if c != nil && !m.expired(c) {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return c, nil
		}
	}

	c, err := m.store.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return conversation.NewContext(sessionID), nil
	}
	if err != nil {
		return nil, err
	}
	if m.expired(c) {
		m.logger.Info("context expired, starting fresh", "session_id", sessionID)
		return conversation.NewContext(sessionID), nil
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, c); err != nil {
			m.logger.Warn("context cache backfill failed", "error", err, "session_id", sessionID)
		}
	}
	return c, nil
}

// Save persists the context and refreshes the cache. The cache write is
// best-effort; only the store decides success.
func (m *Manager) Save(ctx context.Context, c *conversation.Context) error {
	ctx, span := m.tracer.Start(ctx, "context.save",
		trace.WithAttributes(attribute.String("session_id", c.SessionID)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.Validate(c); err != nil {
		// Persist anyway; a broken invariant is a bug to surface, not a
		// reason to drop the user's turn.
		m.logger.Warn("context invariant violated", "error", err, "session_id", c.SessionID)
	}

	c.LastUpdated = time.Now().UTC()
	if err := m.store.Save(ctx, c); err != nil {
		return err
	}
	if m.cache != nil {
		if err := m.cache.Set(ctx, c); err != nil {
			m.logger.Warn("context cache write failed", "error", err, "session_id", c.SessionID)
		}
	}
	return nil
}

// Reset deactivates the session and evicts it from the cache. The next Get
// starts a fresh context.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	ctx, span := m.tracer.Start(ctx, "context.reset",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.store.Deactivate(ctx, sessionID); err != nil {
		return err
	}
	if m.cache != nil {
		if err := m.cache.Delete(ctx, sessionID); err != nil {
			m.logger.Warn("context cache evict failed", "error", err, "session_id", sessionID)
		}
	}
	return nil
}

// Validate checks the prescreening invariant: a session inside the
// questionnaire must know which trial it is screening for and which question
// is pending.
func (m *Manager) Validate(c *conversation.Context) error {
	switch c.State {
	case conversation.StateAwaitingAge, conversation.StateAwaitingDiagnosis,
		conversation.StateAwaitingMedications, conversation.StateAwaitingFlares:
		if c.TrialID == "" && c.FocusCondition == "" {
			return errors.New("contextstore: prescreening without a trial or condition")
		}
		if c.CurrentQuestionKey == "" {
			return errors.New("contextstore: prescreening without a pending question")
		}
	}
	return nil
}

func (m *Manager) expired(c *conversation.Context) bool {
	return !c.LastUpdated.IsZero() && time.Since(c.LastUpdated) > m.maxAge
}
