// Command server starts the pitch evaluator HTTP API.
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

	httpserver "github.com/fairyhunter13/pitch-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/pitch-evaluator/internal/app"
	"github.com/fairyhunter13/pitch-evaluator/internal/config"
	"github.com/fairyhunter13/pitch-evaluator/internal/rubric"
	"github.com/fairyhunter13/pitch-evaluator/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	if cfg.DBMigrate {
		if err := postgres.Migrate(ctx, cfg.DBURL); err != nil {
			slog.Error("db migrate failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	rubrics, err := rubric.Load(cfg.RubricsFile)
	if err != nil {
		slog.Error("rubric load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("rubrics loaded", slog.Any("ids", rubrics.IDs()))

	rdb, err := app.NewRedis(cfg)
	if err != nil {
		slog.Error("redis config invalid", slog.Any("error", err))
		os.Exit(1)
	}
	var redisCheck app.RedisClient
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		redisCheck = app.RedisAdapter{Client: rdb}
	}

	model, err := app.NewModelClient(cfg, rdb)
	if err != nil {
		slog.Error("model client init failed", slog.Any("error", err))
		os.Exit(1)
	}

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue client", slog.Any("error", err))
		}
	}()

	repos := app.NewRepositories(pool)
	evalSvc := app.NewEvaluateService(cfg, repos, model, rubrics, producer, producer)
	subSvc := usecase.NewSubmissionService(repos.Submissions, rubrics)
	resultSvc := usecase.NewResultService(repos.Submissions, repos.Evaluations)

	dbCheck, redisProbe, kafkaCheck := app.BuildReadinessChecks(pool, redisCheck, producer)
	srv := httpserver.NewServer(cfg, subSvc, evalSvc, resultSvc, evalSvc.Companies, dbCheck, redisProbe, kafkaCheck)
	handler := app.BuildRouter(cfg, srv)

	if !cfg.AdminEnabled() {
		slog.Warn("admin credentials not configured; admin routes reject every request")
	}

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
