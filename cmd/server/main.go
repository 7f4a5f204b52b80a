// Package main is the entrypoint for the FixSight API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/fixsight/internal/api"
	"github.com/kiranshivaraju/fixsight/internal/api/handler"
	mw "github.com/kiranshivaraju/fixsight/internal/api/middleware"
	"github.com/kiranshivaraju/fixsight/internal/config"
	"github.com/kiranshivaraju/fixsight/internal/embedding"
	"github.com/kiranshivaraju/fixsight/internal/extract"
	"github.com/kiranshivaraju/fixsight/internal/groq"
	"github.com/kiranshivaraju/fixsight/internal/guide"
	"github.com/kiranshivaraju/fixsight/internal/knowledge"
	"github.com/kiranshivaraju/fixsight/internal/metrics"
	"github.com/kiranshivaraju/fixsight/internal/plan"
	"github.com/kiranshivaraju/fixsight/internal/reason"
	"github.com/kiranshivaraju/fixsight/internal/retrieval"
	"github.com/kiranshivaraju/fixsight/internal/session"
	"github.com/kiranshivaraju/fixsight/internal/solution"
	"github.com/kiranshivaraju/fixsight/internal/triage"
	"github.com/kiranshivaraju/fixsight/internal/vision"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on anything invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"vision_provider", cfg.Vision.Provider,
		"session_backend", cfg.Session.Backend,
		"env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to the knowledge database
	pool, err := knowledge.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := knowledge.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	knowledgeStore := knowledge.NewPostgresStore(pool)

	// 4. Pick the session store backend
	var sessionStore session.Store
	switch cfg.Session.Backend {
	case "redis":
		rs, err := session.NewRedisStore(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis session store: %w", err)
		}
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		sessionStore = rs
		slog.Info("redis connected")
	case "memory":
		sessionStore = session.NewMemoryStore()
		slog.Warn("using in-memory session store; sessions will not survive a restart")
	default:
		return fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}

	// 5. Create model providers
	visionProvider, err := vision.NewProvider(ctx, cfg.Vision)
	if err != nil {
		return fmt.Errorf("create vision provider: %w", err)
	}
	slog.Info("vision provider initialized", "provider", visionProvider.Name())

	embedder, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("create embedding provider: %w", err)
	}
	slog.Info("embedding provider initialized", "provider", cfg.Embedding.Provider)

	groqClient := groq.NewHTTPClient(cfg.Reasoning.BaseURL, cfg.Reasoning.APIKey,
		cfg.Reasoning.Model, cfg.Reasoning.Timeout, cfg.Reasoning.MaxRetries)
	slog.Info("reasoning client initialized", "model", cfg.Reasoning.Model)

	// 6. Assemble the pipeline services
	sessions := session.NewCoordinator(sessionStore, cfg.Session)
	guides := guide.NewService(sessions)
	extractor := extract.New(visionProvider, cfg.Vision.Timeout)
	triageSvc := triage.New(sessions, extractor, guides)
	retriever := retrieval.New(embedder, knowledgeStore, cfg.Retrieval.TopK)
	solver := solution.New(sessions, reason.New(groqClient), retriever, plan.New(groqClient))

	m := metrics.New()

	// 7. Build router with dependencies
	deps := api.Dependencies{
		RateLimit:   mw.NewRateLimit(sessionStore, cfg.RateLimit.RequestsPerMinute),
		CORSOrigins: cfg.Server.AllowedOrigins,

		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": knowledgeStore,
			"sessions": sessionStore,
		}),
		MetricsHandler: m.Handler(),

		AnalyzeFrame:    handler.NewAnalyzeFrameHandler(triageSvc, m),
		LatestAnalysis:  handler.NewLatestObservationHandler(sessions),
		AnalysisHistory: handler.NewHistoryHandler(sessions),
		RunSolution:     handler.NewRunSolutionHandler(solver, m),
		LatestSolution:  handler.NewLatestSolutionHandler(sessions),
		StartGuide:      handler.NewStartGuideHandler(guides),
		AdvanceGuide:    handler.NewAdvanceGuideHandler(guides),
		GuideState:      handler.NewGuideStateHandler(guides),
		EndGuide:        handler.NewEndGuideHandler(guides),
		DebugSession:    handler.NewDebugSessionHandler(sessions),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server. The solution route holds the connection
	// through two reasoning calls with retries, so the write window is
	// much wider than the read window.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
