// Package main provides the worker application entry point.
// The worker evaluates queued submissions from Redpanda and runs the
// stuck-submission sweeper and raw-output cleanup.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/pitch-evaluator/internal/app"
	"github.com/fairyhunter13/pitch-evaluator/internal/config"
	"github.com/fairyhunter13/pitch-evaluator/internal/rubric"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// The worker exposes its own /metrics for queue and evaluation counters.
	observability.InitMetrics()
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerMetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	rubrics, err := rubric.Load(cfg.RubricsFile)
	if err != nil {
		slog.Error("rubric load failed", slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := app.NewRedis(cfg)
	if err != nil {
		slog.Error("redis config invalid", slog.Any("error", err))
		os.Exit(1)
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}
	model, err := app.NewModelClient(cfg, rdb)
	if err != nil {
		slog.Error("model client init failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Completion events only; the worker never enqueues.
	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("queue producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	repos := app.NewRepositories(pool)
	evalSvc := app.NewEvaluateService(cfg, repos, model, rubrics, nil, producer)

	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, cfg.WorkerConcurrency, redpanda.HandlerFunc(evalSvc.HandleEvaluate))
	if err != nil {
		slog.Error("queue consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close queue consumer", slog.Any("error", err))
		}
	}()

	sweeper := app.NewStuckSubmissionSweeper(repos.Submissions, cfg.StuckProcessingAge, cfg.StuckSweepInterval)
	go sweeper.Run(ctx)

	cleanup := postgres.NewCleanupService(pool, cfg.RawOutputRetention())
	go cleanup.RunPeriodic(ctx, cfg.CleanupInterval)
	slog.Info("maintenance started",
		slog.Duration("stuck_processing_age", cfg.StuckProcessingAge),
		slog.Int("raw_output_retention_days", cfg.RawOutputRetentionDays))

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("consumer stopped", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	slog.Info("worker stopped")
}
