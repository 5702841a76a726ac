package fetchgithubdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github-insight/internal/cache"
	"github-insight/internal/common/metrics"
	"github-insight/internal/github"
	"github-insight/internal/intent"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"golang.org/x/sync/errgroup"
)

const (
	TaskType = "fetch-github-data"
)

var (
	ErrInputValidation = errors.New("INPUT_VALIDATION_FAILED")
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Provider reads one resolved request.
type Provider interface {
	Fetch(ctx context.Context, req intent.Request) ([]byte, error)
}

type Handler struct {
	config   *Config
	catalog  *intent.Catalog
	provider Provider
	cache    *cache.ProviderCache
	logger   Logger
}

func NewHandler(config *Config, catalog *intent.Catalog, provider Provider, providerCache *cache.ProviderCache, log Logger) *Handler {
	return &Handler{
		config:   config,
		catalog:  catalog,
		provider: provider,
		cache:    providerCache,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, fmt.Errorf("%w: parse input: %v", ErrInputValidation, err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInputValidation)
	}

	known, unknown := intent.ParseList(input.Intents)
	if len(unknown) > 0 {
		h.logger.Warn("skipping unknown intents", map[string]interface{}{
			"unknown": unknown,
		})
	}
	known = intent.Limit(known, h.config.MaxIntents)

	return &Output{
		Username: username,
		Intents:  known,
		Data:     h.FetchAll(ctx, username, known),
	}, nil
}

// FetchAll resolves every intent concurrently and returns once each one has
// settled. The result holds exactly one entry per intent; failures are
// recorded as error markers in place.
func (h *Handler) FetchAll(ctx context.Context, username string, intents []intent.Intent) intent.AggregatedData {
	var (
		mu   sync.Mutex
		data = make(intent.AggregatedData, len(intents))
		g    errgroup.Group
	)

	for _, i := range intents {
		g.Go(func() error {
			r := h.fetchOne(ctx, username, i)
			mu.Lock()
			data[i] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return data
}

func (h *Handler) fetchOne(ctx context.Context, username string, i intent.Intent) (result intent.ShapedResult) {
	fields := map[string]interface{}{
		"username": username,
		"intent":   string(i),
	}

	defer func() {
		if r := recover(); r != nil {
			fields["panic"] = fmt.Sprint(r)
			h.logger.Error("intent fetch panicked", fields)
			metrics.ProviderFetches.WithLabelValues(string(i), "panic").Inc()
			result = intent.Failed(i)
		}
	}()

	if h.cache != nil {
		cached, ok, err := h.cache.Get(ctx, username, i)
		if err != nil {
			h.logger.Warn("provider cache read failed", withError(fields, err))
		}
		if ok {
			metrics.ProviderFetches.WithLabelValues(string(i), "cache_hit").Inc()
			return cached
		}
	}

	req, err := h.catalog.Resolve(i, username)
	if err != nil {
		h.logger.Warn("cannot resolve intent", withError(fields, err))
		return intent.Failed(i)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, h.config.FetchTimeout)
	defer cancel()

	start := time.Now()
	raw, err := h.provider.Fetch(fetchCtx, req)
	metrics.ProviderFetchDuration.WithLabelValues(string(i)).Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		if errors.Is(err, github.ErrProviderTimeout) {
			outcome = "timeout"
		}
		metrics.ProviderFetches.WithLabelValues(string(i), outcome).Inc()
		h.logger.Warn("intent fetch failed", withError(fields, err))
		return intent.Failed(i)
	}

	result = h.catalog.Shape(i, raw)
	if result.IsError() {
		metrics.ProviderFetches.WithLabelValues(string(i), "shape_error").Inc()
		h.logger.Warn("intent payload rejected", withError(fields, errors.New(result.Err)))
		return result
	}
	metrics.ProviderFetches.WithLabelValues(string(i), "ok").Inc()

	if h.cache != nil {
		if err := h.cache.Put(ctx, username, i, result); err != nil {
			h.logger.Warn("provider cache write failed", withError(fields, err))
		}
	}
	return result
}

func withError(fields map[string]interface{}, err error) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	errorCode := "UNKNOWN_ERROR"
	if errors.Is(err, ErrInputValidation) {
		errorCode = "INPUT_VALIDATION_FAILED"
	}

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":    job.Key,
		"error":     err.Error(),
		"errorCode": errorCode,
	})
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode).Inc()

	_, _ = client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(0).
		ErrorMessage(errorCode + ": " + err.Error()).
		Send(context.Background())
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
