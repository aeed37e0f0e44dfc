package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trialscout/trialchat/internal/conversation"
	"github.com/trialscout/trialchat/internal/llm"
	"github.com/trialscout/trialchat/internal/observability/metrics"
	"github.com/trialscout/trialchat/pkg/logging"
)

// ErrRateLimited is returned when a session exceeds its per-minute budget.
var ErrRateLimited = errors.New("pipeline: session rate limit exceeded")

// Stage processes one turn. The processor's Process method is the innermost
// stage; middleware wraps it.
type Stage func(ctx context.Context, turn Turn) (*Result, error)

// Middleware wraps a stage with a cross-cutting concern.
type Middleware func(Stage) Stage

// Chain applies middleware so the first listed runs outermost.
func Chain(final Stage, mws ...Middleware) Stage {
	for i := len(mws) - 1; i >= 0; i-- {
		final = mws[i](final)
	}
	return final
}

// WithValidation rejects malformed turns before any work happens and caps
// the outbound reply length. maxResponseLength 0 disables the output cap.
func WithValidation(maxMessageLength, maxResponseLength int) Middleware {
	return func(next Stage) Stage {
		return func(ctx context.Context, turn Turn) (*Result, error) {
			cleaned, err := ValidateTurn(turn, maxMessageLength)
			if err != nil {
				return nil, err
			}
			result, err := next(ctx, cleaned)
			if err != nil {
				return nil, err
			}
			result.Reply = truncateReply(result.Reply, maxResponseLength)
			return result, nil
		}
	}
}

// WithLogging logs every turn with its outcome and latency.
func WithLogging(logger *logging.Logger) Middleware {
	return func(next Stage) Stage {
		return func(ctx context.Context, turn Turn) (*Result, error) {
			started := time.Now()
			result, err := next(ctx, turn)
			log := logger.WithSession(turn.SessionID)
			if err != nil {
				log.Error("turn failed", "error", err, "duration_ms", time.Since(started).Milliseconds())
				return nil, err
			}
			log.Info("turn completed",
				"intent", string(result.Intent.Type),
				"state", string(result.State),
				"cached", result.Cached,
				"duration_ms", time.Since(started).Milliseconds())
			return result, nil
		}
	}
}

// WithRecovery converts panics in later stages into a canned reply. The
// panic is logged; the user never sees a bare server error for a chat turn.
func WithRecovery(logger *logging.Logger) Middleware {
	return func(next Stage) Stage {
		return func(ctx context.Context, turn Turn) (result *Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.WithSession(turn.SessionID).Error("turn panicked", "panic", fmt.Sprint(r))
					result, err = &Result{
						SessionID: turn.SessionID,
						Reply:     llm.ContextualFallback(""),
						Intent:    conversation.DetectedIntent{Type: conversation.IntentGeneralQuery},
						State:     conversation.StateIdle,
					}, nil
				}
			}()
			return next(ctx, turn)
		}
	}
}

// WithMetrics records turn counts, latency, and intent confidence.
func WithMetrics(m *metrics.Metrics) Middleware {
	return func(next Stage) Stage {
		return func(ctx context.Context, turn Turn) (*Result, error) {
			result, err := next(ctx, turn)
			if err != nil {
				if errors.Is(err, ErrRateLimited) {
					m.RateLimited.Inc()
				}
				return nil, err
			}
			m.TurnsTotal.WithLabelValues(string(result.Intent.Type), string(result.State)).Inc()
			m.TurnDuration.Observe(result.Duration.Seconds())
			m.IntentConfidence.Observe(result.Intent.Confidence)
			return result, nil
		}
	}
}

// sessionWindow tracks one session's turn timestamps inside the window.
type sessionWindow struct {
	stamps []time.Time
}

// RateLimiter enforces a sliding-window per-session turn budget.
type RateLimiter struct {
	mu     sync.Mutex
	perMin int
	window time.Duration
	byID   map[string]*sessionWindow
	now    func() time.Time
	swept  time.Time
}

// NewRateLimiter allows perMin turns per session per minute.
func NewRateLimiter(perMin int) *RateLimiter {
	return &RateLimiter{
		perMin: perMin,
		window: time.Minute,
		byID:   map[string]*sessionWindow{},
		now:    time.Now,
	}
}

// Allow reports whether the session may take another turn now.
func (r *RateLimiter) Allow(sessionID string) bool {
	if r.perMin <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	r.sweep(now, cutoff)

	w := r.byID[sessionID]
	if w == nil {
		w = &sessionWindow{}
		r.byID[sessionID] = w
	}
	keep := w.stamps[:0]
	for _, s := range w.stamps {
		if s.After(cutoff) {
			keep = append(keep, s)
		}
	}
	w.stamps = keep

	if len(w.stamps) >= r.perMin {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// sweep drops idle sessions so the map does not grow unbounded.
func (r *RateLimiter) sweep(now time.Time, cutoff time.Time) {
	if now.Sub(r.swept) < r.window {
		return
	}
	r.swept = now
	for id, w := range r.byID {
		if len(w.stamps) == 0 || !w.stamps[len(w.stamps)-1].After(cutoff) {
			delete(r.byID, id)
		}
	}
}

// WithRateLimit rejects turns beyond the per-session budget.
func WithRateLimit(limiter *RateLimiter) Middleware {
	return func(next Stage) Stage {
		return func(ctx context.Context, turn Turn) (*Result, error) {
			if !limiter.Allow(turn.SessionID) {
				return nil, ErrRateLimited
			}
			return next(ctx, turn)
		}
	}
}

// ResponseCache short-circuits repeated identical questions asked in the
// same conversational situation. Only successful replies are cached.
type ResponseCache struct {
	client   *redis.Client
	contexts contextManager
	ttl      time.Duration
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewResponseCache builds the cache; m may be nil.
func NewResponseCache(client *redis.Client, contexts contextManager, ttl time.Duration, m *metrics.Metrics, logger *logging.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResponseCache{client: client, contexts: contexts, ttl: ttl, metrics: m, logger: logger}
}

// key builds the cache key from the message and the conversational
// situation, so the same question in a different state misses.
func (rc *ResponseCache) key(ctx context.Context, turn Turn) (string, error) {
	c, err := rc.contexts.Get(ctx, turn.SessionID)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(turn.Message + "|" + c.FocusCondition + "|" + c.FocusLocation + "|" + string(c.State)))
	return "trialchat:response:" + hex.EncodeToString(sum[:]), nil
}

func (rc *ResponseCache) lookup(result string) {
	if rc.metrics != nil {
		rc.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

// Middleware wires the cache around the chain. Answer intents are never
// cached: "yes" means something different on every question.
func (rc *ResponseCache) Middleware() Middleware {
	return func(next Stage) Stage {
		return func(ctx context.Context, turn Turn) (*Result, error) {
			key, err := rc.key(ctx, turn)
			if err != nil {
				return next(ctx, turn)
			}

			if blob, err := rc.client.Get(ctx, key).Bytes(); err == nil {
				var cached Result
				if json.Unmarshal(blob, &cached) == nil {
					rc.lookup("hit")
					cached.SessionID = turn.SessionID
					cached.Cached = true
					return &cached, nil
				}
			}
			rc.lookup("miss")

			result, err := next(ctx, turn)
			if err != nil {
				return nil, err
			}
			if rc.cacheable(result) {
				if blob, err := json.Marshal(result); err == nil {
					if err := rc.client.Set(ctx, key, blob, rc.ttl).Err(); err != nil {
						rc.logger.Warn("response cache write failed", "error", err)
					}
				}
			}
			return result, nil
		}
	}
}

func (rc *ResponseCache) cacheable(result *Result) bool {
	if result.Reply == "" || result.Cached {
		return false
	}
	return !conversation.IsAnswerIntent(result.Intent.Type)
}
