// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"github-insight/internal/app"
	"github-insight/internal/common/camunda"
	"github-insight/internal/common/config"
	"github-insight/internal/common/logger"
	"github-insight/internal/common/observability"

	aq "github-insight/internal/workers/ai-conversation/answer-question"
	di "github-insight/internal/workers/ai-conversation/detect-intents"
	fgd "github-insight/internal/workers/ai-conversation/fetch-github-data"
	gr "github-insight/internal/workers/ai-conversation/generate-response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.Build(ctx, cfg, log, app.Options{Observability: obs})
	if err != nil {
		zapLog.Fatal("pipeline assembly failed", zap.Error(err))
	}
	defer pipeline.Close()

	// --- Zeebe job workers ---
	var (
		zeebe   *camunda.Client
		workers []worker.JobWorker
	)
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.Connect(ctx, camunda.ConfigFrom(cfg.Camunda), log)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		pipeline.Checks["zeebe"] = zeebe.HealthCheck

		workers = camunda.StartWorkers(zeebe.Zeebe(), cfg, []camunda.Registration{
			{TaskType: di.TaskType, Handler: pipeline.Detector.Handle},
			{TaskType: fgd.TaskType, Handler: pipeline.Fetcher.Handle},
			{TaskType: gr.TaskType, Handler: pipeline.Responder.Handle},
			{TaskType: aq.TaskType, Handler: pipeline.Turns.Handle},
		}, log)
		zapLog.Info("Zeebe workers registered", zap.Int("count", len(workers)))
	} else {
		zapLog.Info("camunda disabled, serving HTTP only")
	}

	// --- HTTP API, health & metrics ---
	httpServer := pipeline.Server().HTTPServer(
		cfg.Server.Address,
		config.GetDuration(cfg.Server.ReadTimeout),
		config.GetDuration(cfg.Server.WriteTimeout),
	)
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}

	if zeebe != nil {
		camunda.StopWorkers(workers, log)
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Worker manager stopped gracefully", zap.Duration("shutdownBudget", config.GetDuration(cfg.Server.ShutdownTimeout)))
}
