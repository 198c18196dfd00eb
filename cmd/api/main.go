package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"voiceops-platform/internal/agents"
	"voiceops-platform/internal/analysis"
	"voiceops-platform/internal/audit"
	"voiceops-platform/internal/auth"
	"voiceops-platform/internal/calls"
	"voiceops-platform/internal/config"
	"voiceops-platform/internal/dispatch"
	"voiceops-platform/internal/experiments"
	"voiceops-platform/internal/httpapi"
	"voiceops-platform/internal/reporting"
	"voiceops-platform/internal/schedcalls"
	"voiceops-platform/internal/workflows"
	"voiceops-platform/pkg/logger"
	"voiceops-platform/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Voice providers. A provider with no API key stays out of the table and
	// agents bound to it fail at dispatch with a clear error.
	providers := map[string]dispatch.Provider{}
	webhookSecrets := map[string]string{}
	if cfg.Vapi.APIKey != "" {
		providers["vapi"] = dispatch.NewVapiProvider(dispatch.Credentials{APIKey: cfg.Vapi.APIKey, BaseURL: cfg.Vapi.BaseURL}, nil)
		webhookSecrets["vapi"] = cfg.Vapi.WebhookSecret
	}
	if cfg.Retell.APIKey != "" {
		providers["retell"] = dispatch.NewRetellProvider(dispatch.Credentials{APIKey: cfg.Retell.APIKey, BaseURL: cfg.Retell.BaseURL}, nil)
		webhookSecrets["retell"] = cfg.Retell.WebhookSecret
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	agentSvc := agents.NewService(agents.NewPostgresRepo(db), providers)
	experimentSvc := experiments.NewService(experiments.NewPostgresRepo(db), rng)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	var limiter *schedcalls.RedisLimiter
	var callLimiter schedcalls.Limiter
	if cfg.Scheduler.MaxConcurrentCalls > 0 {
		limiter = schedcalls.NewRedisLimiter(rdb, cfg.Scheduler.MaxConcurrentCalls, 15*time.Minute)
		callLimiter = limiter
	}

	callSvc := schedcalls.NewService(
		schedcalls.NewPostgresRepo(db),
		dispatch.NewDispatcher(rng),
		agentSvc,
		experimentSvc,
		auditSvc,
		callLimiter,
	)

	scheduler := schedcalls.NewScheduler(callSvc, cfg.Scheduler.TickSpec, log)
	scheduler.SetBatch(cfg.Scheduler.BatchSize)
	if err := scheduler.Start(rootCtx); err != nil {
		log.Error("scheduler start failed", "err", err)
		os.Exit(1)
	}

	wfEngine := workflows.NewEngine(workflows.NewPostgresRepo(db), workflows.Capabilities{}, nil)

	var analyzer *analysis.Analyzer
	if cfg.Analysis.Enabled {
		analyzer = analysis.NewAnalyzer(analysis.NewOpenAIClient(cfg.Analysis.APIKey, cfg.Analysis.BaseURL, cfg.Analysis.Model, nil))
	}
	runner := analysis.NewRunner(log, cfg.Analysis.JobTimeout)

	callLog := calls.NewPostgresRepo(db)

	handlers := httpapi.Handlers{
		Auth:        authManager,
		Agents:      agentSvc,
		Calls:       callSvc,
		CallLog:     callLog,
		Workflows:   wfEngine,
		Experiments: experimentSvc,
		Reports:     reporting.NewService(callLog),
	}
	webhook := &httpapi.WebhookHandler{
		Secrets:         webhookSecrets,
		Dedup:           httpapi.NewRedisDeduper(rdb, 24*time.Hour),
		Calls:           callSvc,
		CallLog:         callLog,
		Agents:          agentSvc,
		Workflows:       wfEngine,
		Analyzer:        analyzer,
		Runner:          runner,
		AnalysisEnabled: cfg.Analysis.Enabled,
	}
	if limiter != nil {
		webhook.Limiter = limiter
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, webhook, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Drain in-flight post-call pipelines before the process exits.
	runner.Wait()

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
