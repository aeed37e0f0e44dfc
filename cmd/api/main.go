package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/trialscout/trialchat/internal/api"
	appconfig "github.com/trialscout/trialchat/internal/config"
	"github.com/trialscout/trialchat/internal/contextstore"
	"github.com/trialscout/trialchat/internal/handlers"
	"github.com/trialscout/trialchat/internal/llm"
	"github.com/trialscout/trialchat/internal/observability/metrics"
	"github.com/trialscout/trialchat/internal/pipeline"
	"github.com/trialscout/trialchat/internal/trials"
	appmigrations "github.com/trialscout/trialchat/migrations"
	"github.com/trialscout/trialchat/pkg/logging"
)

func main() {
	// Local development convenience; production sets real env vars.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting trialchat API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx := context.Background()

	// Postgres pool for context persistence and trial search
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}

	if cfg.MigrateOnBoot {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			logger.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	// database/sql handle for the append-only turn log
	logDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open turn log db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = logDB.Close() }()

	// Redis for the context cache and response cache
	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		// Caches degrade to the database; keep serving.
		logger.Warn("redis unavailable, caching degraded", "error", err)
	}
	cancelPing()

	// Optional LLM fallback for general queries
	var responder *llm.Responder
	if cfg.GeminiAPIKey != "" {
		geminiClient, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		defer func() { _ = geminiClient.Close() }()
		responder = llm.NewResponder(geminiClient, cfg.LLMTimeout)
		logger.Info("llm responder enabled", "model", cfg.GeminiModelID)
	} else {
		logger.Info("no GEMINI_API_KEY set, general queries use canned replies")
	}

	// Domain services
	searcher := trials.NewPostgresSearcher(pool)
	fallback := trials.NewFallback(searcher)
	registry := handlers.NewDefaultRegistry(searcher, fallback, responder, logger)

	store := contextstore.NewPostgresStore(pool)
	cache := contextstore.NewCache(redisClient, cfg.ContextCacheTTL)
	contexts := contextstore.NewManager(store, cache, cfg.ContextMaxAge, cfg.StorageTimeout, logger.WithComponent("contextstore"))
	turnLog := contextstore.NewTurnLogger(logDB)

	m := metrics.New(prometheus.DefaultRegisterer)

	// Per-turn pipeline with its middleware chain
	pipelineLogger := logger.WithComponent("pipeline")
	processor := pipeline.NewProcessor(contexts, registry, turnLog, cfg.HistoryLimit, pipelineLogger)
	responseCache := pipeline.NewResponseCache(redisClient, contexts, cfg.ResponseCacheTTL, m, pipelineLogger)
	chat := pipeline.Chain(processor.Process,
		pipeline.WithRecovery(pipelineLogger),
		pipeline.WithLogging(pipelineLogger),
		pipeline.WithMetrics(m),
		pipeline.WithValidation(cfg.MaxMessageLength, cfg.MaxResponseLength),
		pipeline.WithRateLimit(pipeline.NewRateLimiter(cfg.RateLimitPerMin)),
		responseCache.Middleware(),
	)

	// Setup router
	chatHandler := api.NewHandler(chat, processor, logger.WithComponent("api"))
	r := api.NewRouter(api.RouterConfig{
		Logger:         logger,
		ChatHandler:    chatHandler,
		MetricsHandler: promhttp.Handler(),
		RateLimitRPS:   cfg.HTTPRateLimit,
		RateLimitBurst: cfg.HTTPRateBurst,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// runMigrations applies any pending schema migrations from the embedded
// migration files. It opens its own connection because golang-migrate
// wants a database/sql handle.
func runMigrations(databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	dbDriver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}

	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	srcErr, dbErr := migrator.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
