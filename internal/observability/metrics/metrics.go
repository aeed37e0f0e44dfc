// Package metrics defines the Prometheus instruments for the chat pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the pipeline instruments. Construct one per process with
// the registry the /metrics endpoint serves.
type Metrics struct {
	TurnsTotal       *prometheus.CounterVec
	TurnDuration     prometheus.Histogram
	IntentConfidence prometheus.Histogram
	HandlerErrors    *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	RateLimited      prometheus.Counter
	Transitions      *prometheus.CounterVec
}

// New registers the instruments on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialchat",
			Name:      "turns_total",
			Help:      "Chat turns processed, by detected intent and final state.",
		}, []string{"intent", "state"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trialchat",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn processing latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		IntentConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trialchat",
			Name:      "intent_confidence",
			Help:      "Confidence of the winning intent per turn.",
			Buckets:   []float64{0.5, 0.7, 0.85, 0.9, 0.95, 1},
		}),
		HandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialchat",
			Name:      "handler_errors_total",
			Help:      "Handler failures by intent.",
		}, []string{"intent"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialchat",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trialchat",
			Name:      "rate_limited_total",
			Help:      "Turns rejected by the per-session rate limit.",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialchat",
			Name:      "state_transitions_total",
			Help:      "Conversation state transitions by edge.",
		}, []string{"from", "to"}),
	}
}
