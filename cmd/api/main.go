package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/credgenhq/credgen/internal/api/router"
	"github.com/credgenhq/credgen/internal/config"
	"github.com/credgenhq/credgen/internal/conversation"
	"github.com/credgenhq/credgen/internal/fraud"
	"github.com/credgenhq/credgen/internal/negotiation"
	"github.com/credgenhq/credgen/internal/observability/metrics"
	"github.com/credgenhq/credgen/internal/sanction"
	"github.com/credgenhq/credgen/internal/scoring"
	"github.com/credgenhq/credgen/internal/session"
	"github.com/credgenhq/credgen/internal/underwriting"
	"github.com/credgenhq/credgen/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting credgen API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_backend", cfg.SessionBackend,
	)

	store := newSessionStore(cfg, logger)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	reaper := session.NewReaper(store, cfg.ReaperInterval, logger)
	reaper.Start(rootCtx)
	defer reaper.Stop()

	fraudScorer := scoring.NewClient(cfg.FraudScorerURL,
		scoring.WithLogger(logger),
		scoring.WithTimeout(cfg.ScoringTimeout),
	)
	riskScorer := scoring.NewClient(cfg.UnderwritingScorerURL,
		scoring.WithLogger(logger),
		scoring.WithTimeout(cfg.ScoringTimeout),
	)
	documents := sanction.NewClient(cfg.DocumentServiceURL,
		sanction.WithLogger(logger),
		sanction.WithTimeout(cfg.DocumentTimeout),
	)

	fraudAdapter := fraud.NewAdapter(fraudScorer, fraud.Config{FlagThreshold: cfg.FraudFlagThreshold}, logger)

	uwCfg := underwriting.DefaultConfig()
	uwCfg.RejectThreshold = cfg.RiskRejectThreshold
	underwriter := underwriting.NewEngine(riskScorer, uwCfg, logger)

	negCfg := negotiation.DefaultConfig()
	negCfg.Step = cfg.NegotiationStep
	negCfg.MaxRounds = cfg.MaxNegotiationRounds
	negCfg.Bands = uwCfg.Bands
	negotiator := negotiation.NewEngine(negCfg, logger)

	registry := prometheus.NewRegistry()
	decisionMetrics := metrics.NewDecisionMetrics(registry)

	engine := conversation.NewEngine(store, fraudAdapter, underwriter, negotiator, documents,
		conversation.WithLogger(logger),
		conversation.WithMetrics(decisionMetrics),
	)

	dispatcher := conversation.NewDispatcher(engine, conversation.NewMemoryQueue(cfg.QueueBuffer), logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
	)

	conversationHandler := conversation.NewHandler(dispatcher, store, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversationHandler,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TurnTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown failed", "error", err)
	}
	rootCancel()

	logger.Info("server stopped")
}

func newSessionStore(cfg *config.Config, logger *logging.Logger) session.Store {
	if cfg.SessionBackend != "redis" {
		return session.NewMemoryStore(cfg.SessionTTL)
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("redis unreachable, falling back to in-memory sessions", "error", err, "addr", cfg.RedisAddr)
		return session.NewMemoryStore(cfg.SessionTTL)
	}

	logger.Info("using redis session store", "addr", cfg.RedisAddr)
	return session.NewRedisStore(client, cfg.SessionTTL, otel.Tracer("credgen.internal.session"))
}
