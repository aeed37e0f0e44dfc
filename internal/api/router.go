package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trialscout/trialchat/pkg/logging"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	Logger         *logging.Logger
	ChatHandler    *Handler
	MetricsHandler http.Handler

	// Per-IP rate limit on the public surface; 0 disables it.
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter creates a Chi router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", cfg.ChatHandler.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		v1.Post("/chat", cfg.ChatHandler.Chat)
		v1.Route("/sessions/{sessionID}", func(s chi.Router) {
			s.Get("/", cfg.ChatHandler.GetSession)
			s.Post("/reset", cfg.ChatHandler.ResetSession)
		})
	})

	return r
}
