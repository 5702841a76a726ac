// Package app assembles the pipeline stages from configuration. The worker
// manager, the HTTP server and the ask tool all start from Build.
package app

import (
	"context"
	"fmt"
	"time"

	"github-insight/internal/cache"
	"github-insight/internal/common/config"
	"github-insight/internal/common/database"
	"github-insight/internal/common/logger"
	"github-insight/internal/common/observability"
	"github-insight/internal/common/validation"
	"github-insight/internal/github"
	"github-insight/internal/history"
	"github-insight/internal/intent"
	"github-insight/internal/llm"
	"github-insight/internal/models"
	"github-insight/internal/server"
	aq "github-insight/internal/workers/ai-conversation/answer-question"
	di "github-insight/internal/workers/ai-conversation/detect-intents"
	fgd "github-insight/internal/workers/ai-conversation/fetch-github-data"
	gr "github-insight/internal/workers/ai-conversation/generate-response"
	"github-insight/pkg/registry"
)

// Options override parts of the assembly. Zero values use the config.
type Options struct {
	Generator     llm.Generator
	Observability *observability.Observability
}

// App holds the assembled stages and the resources behind them.
type App struct {
	Config    *config.Config
	Caches    cache.Pair
	Validator *validation.Validator
	Detector  *di.Handler
	Fetcher   *fgd.Handler
	Responder *gr.Handler
	Turns     *aq.Handler
	History   models.TurnRepository
	Checks    map[string]server.Check

	closers []func() error
	log     logger.Logger
}

func Build(ctx context.Context, cfg *config.Config, log logger.Logger, opts Options) (*App, error) {
	a := &App{
		Config: cfg,
		Checks: map[string]server.Check{},
		log:    log,
	}

	validator, err := validation.NewValidator(registry.Default())
	if err != nil {
		return nil, fmt.Errorf("build validator: %w", err)
	}
	a.Validator = validator

	a.Caches = a.buildCaches()

	generator := opts.Generator
	if generator == nil {
		generator, err = llm.New(ctx, cfg.GenAI)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("build generator: %w", err)
		}
	}

	if err := a.buildHistory(ctx); err != nil {
		a.Close()
		return nil, err
	}

	provider := github.NewClient(github.Config{
		BaseURL:   cfg.GitHub.BaseURL,
		Token:     cfg.GitHub.Token,
		UserAgent: cfg.GitHub.UserAgent,
		Timeout:   config.GetDuration(cfg.GitHub.Timeout),
	})

	a.Detector = di.NewHandler(
		&di.Config{Timeout: workerTimeout(cfg, di.TaskType, di.LoadConfig().Timeout)},
		generator,
		&detectIntentsLoggerAdapter{log},
	)
	a.Fetcher = fgd.NewHandler(
		&fgd.Config{
			Timeout:      workerTimeout(cfg, fgd.TaskType, fgd.LoadConfig().Timeout),
			FetchTimeout: config.GetDuration(cfg.GitHub.Timeout),
			MaxIntents:   cfg.Pipeline.MaxIntents,
		},
		intent.NewCatalog(),
		provider,
		a.Caches.Provider,
		&fetchGitHubDataLoggerAdapter{log},
	)
	a.Responder = gr.NewHandler(
		&gr.Config{Timeout: workerTimeout(cfg, gr.TaskType, gr.LoadConfig().Timeout)},
		generator,
		&generateResponseLoggerAdapter{log},
	)
	a.Turns = aq.NewHandler(
		&aq.Config{
			Timeout:    workerTimeout(cfg, aq.TaskType, aq.LoadConfig().Timeout),
			MaxIntents: cfg.Pipeline.MaxIntents,
		},
		aq.Dependencies{
			Responses:     a.Caches.Response,
			Classifier:    a.Detector,
			Fetcher:       a.Fetcher,
			Synthesizer:   a.Responder,
			History:       a.History,
			Validator:     validator,
			Observability: opts.Observability,
		},
		&answerQuestionLoggerAdapter{log},
	)

	log.Info("pipeline assembled", map[string]interface{}{
		"cacheBackend": cfg.Cache.Backend,
		"genaiBackend": cfg.GenAI.Backend,
		"history":      cfg.History.Enabled,
		"maxIntents":   cfg.Pipeline.MaxIntents,
	})
	return a, nil
}

func (a *App) buildCaches() cache.Pair {
	cfg := a.Config.Cache
	providerOpts := cache.Options{
		TTL:        config.GetDuration(cfg.ProviderTTL),
		MaxEntries: cfg.MaxEntries,
		EvictCount: cfg.EvictCount,
	}
	responseOpts := cache.Options{
		TTL:        config.GetDuration(cfg.ResponseTTL),
		MaxEntries: cfg.MaxEntries,
		EvictCount: cfg.EvictCount,
	}

	if cfg.Backend != config.CacheBackendRedis {
		return cache.NewMemoryPair(providerOpts, responseOpts)
	}

	rdb := database.NewRedis(a.Config.Database.Redis)
	a.closers = append(a.closers, rdb.Close)
	a.Checks["redis"] = rdb.Ping
	return cache.NewRedisPair(rdb.Client, cfg.KeyPrefix, providerOpts, responseOpts)
}

func (a *App) buildHistory(ctx context.Context) error {
	if !a.Config.History.Enabled {
		a.History = history.NopRecorder{}
		return nil
	}

	pg, err := database.NewPostgres(a.Config.Database.Postgres)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	a.closers = append(a.closers, pg.Close)
	a.Checks["postgres"] = pg.Ping

	recorder := history.NewPostgresRecorder(pg.DB)
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := recorder.EnsureSchema(schemaCtx); err != nil {
		return fmt.Errorf("prepare history schema: %w", err)
	}
	a.History = recorder
	return nil
}

// Server builds the HTTP API over the assembled stages.
func (a *App) Server() *server.Server {
	deps := server.Dependencies{
		Detector:  a.Detector,
		Turns:     a.Turns,
		Validator: a.Validator,
		Checks:    a.Checks,
		Profiling: a.Config.Server.EnablePprof,
	}
	if a.Config.History.Enabled {
		deps.History = a.History
	}
	return server.New(deps, a.log)
}

// Close releases every resource opened by Build.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	a.closers = nil
}

func workerTimeout(cfg *config.Config, taskType string, fallback time.Duration) time.Duration {
	if w, ok := cfg.Workers[taskType]; ok && w.Timeout > 0 {
		return config.GetDuration(w.Timeout)
	}
	return fallback
}
