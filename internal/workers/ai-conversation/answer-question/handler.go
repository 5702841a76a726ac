package answerquestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github-insight/internal/cache"
	commonerrors "github-insight/internal/common/errors"
	"github-insight/internal/common/metrics"
	"github-insight/internal/common/observability"
	"github-insight/internal/common/validation"
	"github-insight/internal/intent"
	"github-insight/internal/models"
	detectintents "github-insight/internal/workers/ai-conversation/detect-intents"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "answer-question"

	FallbackErrorCode = "ai_fallback"
)

var (
	ErrInputValidation = errors.New("INPUT_VALIDATION_FAILED")
)

// State is a step of a turn.
type State string

const (
	StateCacheCheck   State = "cache_check"
	StateClassifying  State = "classifying"
	StateFetching     State = "fetching"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
	StateErrored      State = "errored"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Classifier interface {
	Execute(ctx context.Context, input *detectintents.Input) ([]intent.Intent, error)
}

type Fetcher interface {
	FetchAll(ctx context.Context, username string, intents []intent.Intent) intent.AggregatedData
}

type Synthesizer interface {
	Synthesize(ctx context.Context, q models.Query, intents []intent.Intent, data intent.AggregatedData, requestID string) *models.FinalAnswer
}

type Recorder interface {
	Record(ctx context.Context, turn *models.Turn) error
}

// Dependencies are the stages and stores a turn runs through. Validator,
// History and Observability are optional.
type Dependencies struct {
	Responses     *cache.ResponseCache
	Classifier    Classifier
	Fetcher       Fetcher
	Synthesizer   Synthesizer
	History       Recorder
	Validator     *validation.Validator
	Observability *observability.Observability
}

type Handler struct {
	config       *Config
	deps         Dependencies
	errorHandler *commonerrors.ErrorHandler
	logger       Logger
	now          func() time.Time
	newID        func() string
}

func NewHandler(config *Config, deps Dependencies, log Logger) *Handler {
	l := log.With(map[string]interface{}{
		"taskType": TaskType,
	})
	return &Handler{
		config:       config,
		deps:         deps,
		errorHandler: commonerrors.NewErrorHandler(l),
		logger:       l,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, commonerrors.NewInputValidationError("parse input: "+err.Error()))
		return
	}

	result, err := h.execute(ctx, &input)
	if err != nil {
		stdErr := commonerrors.NewInternalError(err)
		if errors.Is(err, ErrInputValidation) {
			stdErr = commonerrors.NewInputValidationError(err.Error())
		}
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, stdErr.WithMetadata("username", input.Username))
		return
	}

	h.completeJob(client, job, result.Output())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Result, error) {
	start := h.now()
	result := &Result{}

	if err := h.validate(input); err != nil {
		result.Trace = append(result.Trace, StateErrored)
		h.logger.Warn("rejected turn", map[string]interface{}{
			"error": err.Error(),
		})
		return result, err
	}

	q := models.Query{Subject: strings.TrimSpace(input.Username), Question: input.Question}
	fields := map[string]interface{}{"username": q.Subject}

	result.Trace = append(result.Trace, StateCacheCheck)
	if h.deps.Responses != nil {
		cached, ok, err := h.deps.Responses.Get(ctx, q)
		if err != nil {
			h.logger.Warn("response cache read failed", merge(fields, "error", err.Error()))
		}
		if ok {
			result.Answer = cached
			result.FromCache = true
			result.Trace = append(result.Trace, StateDone)
			metrics.Answers.WithLabelValues("cache").Inc()
			h.finish(ctx, q, result, start)
			return result, nil
		}
	}

	result.Trace = append(result.Trace, StateClassifying)
	intents := h.classify(ctx, q, input.Intents)

	result.Trace = append(result.Trace, StateFetching)
	intents = intent.Limit(intents, h.config.MaxIntents)
	data := h.deps.Fetcher.FetchAll(ctx, q.Subject, intents)

	result.Trace = append(result.Trace, StateSynthesizing)
	result.Answer = h.deps.Synthesizer.Synthesize(ctx, q, intents, data, h.newID())

	if h.deps.Responses != nil {
		if err := h.deps.Responses.Put(ctx, q, result.Answer); err != nil {
			h.logger.Warn("response cache write failed", merge(fields, "error", err.Error()))
		}
	}

	result.Trace = append(result.Trace, StateDone)
	h.finish(ctx, q, result, start)
	return result, nil
}

func (h *Handler) validate(input *Input) error {
	if h.deps.Validator != nil {
		res, err := h.deps.Validator.ValidateInput(TaskType, input)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInputValidation, err)
		}
		if !res.Valid {
			return fmt.Errorf("%w: %s", ErrInputValidation, strings.Join(res.GetErrorMessages(), "; "))
		}
	}
	if strings.TrimSpace(input.Username) == "" || strings.TrimSpace(input.Question) == "" {
		return fmt.Errorf("%w: message and username are required", ErrInputValidation)
	}
	return nil
}

// classify prefers caller-supplied intents, then the classifier, then the
// fallback list.
func (h *Handler) classify(ctx context.Context, q models.Query, precomputed []string) []intent.Intent {
	if len(precomputed) > 0 {
		known, unknown := intent.ParseList(precomputed)
		if len(unknown) > 0 {
			h.logger.Warn("dropping unknown intents", map[string]interface{}{
				"username": q.Subject,
				"unknown":  unknown,
			})
		}
		if len(known) > 0 {
			return known
		}
	}

	intents, err := h.deps.Classifier.Execute(ctx, &detectintents.Input{Question: q.Question, Username: q.Subject})
	if err != nil {
		h.logger.Warn("classification failed, using fallback intents", map[string]interface{}{
			"username": q.Subject,
			"error":    err.Error(),
		})
		return intent.Fallback()
	}
	return intents
}

func (h *Handler) finish(ctx context.Context, q models.Query, result *Result, start time.Time) {
	elapsed := h.now().Sub(start)
	source := result.Answer.Source()
	if result.FromCache {
		source = "cache"
	}

	h.deps.Observability.RecordTurn(ctx, source, elapsed)
	h.deps.Observability.RecordIntents(ctx, intent.Strings(result.Answer.Intents))

	h.logger.Info("turn answered", map[string]interface{}{
		"username":  q.Subject,
		"requestId": result.Answer.RequestID,
		"source":    source,
		"intents":   intent.Strings(result.Answer.Intents),
		"duration":  elapsed.String(),
	})

	if h.deps.History == nil {
		return
	}
	turn := &models.Turn{
		RequestID:         result.Answer.RequestID,
		Username:          q.Subject,
		Question:          q.Question,
		Intents:           intent.Strings(result.Answer.Intents),
		Answer:            result.Answer.Text,
		SucceededViaModel: result.Answer.SucceededViaModel,
		FromCache:         result.FromCache,
		DurationMs:        elapsed.Milliseconds(),
		CreatedAt:         h.now().UTC(),
	}
	if err := h.deps.History.Record(ctx, turn); err != nil {
		h.logger.Warn("history write failed", map[string]interface{}{
			"username":  q.Subject,
			"requestId": turn.RequestID,
			"error":     err.Error(),
		})
	}
}

func merge(fields map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
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

// Execute runs one turn. The only error it returns is ErrInputValidation,
// together with a Result whose trace ends in StateErrored.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Result, error) {
	return h.execute(ctx, input)
}
