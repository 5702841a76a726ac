package detectintents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github-insight/internal/common/metrics"
	"github-insight/internal/intent"
	"github-insight/internal/llm"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "detect-intents"

	FallbackErrorCode = "fallback_used"
	FallbackMessage   = "Using fallback intents due to AI service unavailability"
)

var (
	ErrInputValidation      = errors.New("INPUT_VALIDATION_FAILED")
	ErrClassificationFailed = errors.New("INTENT_CLASSIFICATION_FAILED")
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Handler struct {
	config    *Config
	generator llm.Generator
	logger    Logger
}

func NewHandler(config *Config, generator llm.Generator, log Logger) *Handler {
	return &Handler{
		config:    config,
		generator: generator,
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

	output, err := h.Detect(ctx, &input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

// Detect classifies the question and never fails after validation: a
// classification failure yields the fallback intents with Success false.
func (h *Handler) Detect(ctx context.Context, input *Input) (*Output, error) {
	intents, err := h.execute(ctx, input)
	if errors.Is(err, ErrInputValidation) {
		return nil, err
	}
	if err != nil {
		h.logger.Warn("classification failed, using fallback intents", map[string]interface{}{
			"error": err.Error(),
		})
		return &Output{
			Intents: intent.Fallback(),
			Success: false,
			Error:   FallbackErrorCode,
			Message: FallbackMessage,
		}, nil
	}
	return &Output{Intents: intents, Success: true}, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) ([]intent.Intent, error) {
	if strings.TrimSpace(input.Question) == "" || strings.TrimSpace(input.Username) == "" {
		return nil, fmt.Errorf("%w: message and username are required", ErrInputValidation)
	}

	reply, err := h.generator.Generate(ctx, BuildPrompt(input.Question, input.Username))
	if err != nil {
		metrics.ModelCalls.WithLabelValues(TaskType, "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrClassificationFailed, err)
	}
	metrics.ModelCalls.WithLabelValues(TaskType, "ok").Inc()

	known, unknown := intent.ParseList(strings.Split(reply, ","))
	if len(unknown) > 0 {
		h.logger.Warn("dropping unknown intents", map[string]interface{}{
			"unknown": unknown,
		})
	}
	if len(known) == 0 {
		return nil, fmt.Errorf("%w: no known intents in reply %q", ErrClassificationFailed, reply)
	}

	h.logger.Info("intents detected", map[string]interface{}{
		"username": input.Username,
		"intents":  intent.Strings(known),
	})
	return known, nil
}

// BuildPrompt asks for a comma-separated subset of the vocabulary.
func BuildPrompt(question, username string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User asked: \"%s\"\nUsername: %s\n\n", question, username)
	b.WriteString("List all applicable intents from the following options:\n")
	for _, i := range intent.All() {
		b.WriteString("- ")
		b.WriteString(string(i))
		b.WriteByte('\n')
	}
	b.WriteString("\nOnly return intents as a comma-separated list, no explanation.\n")
	return b.String()
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

// failJob is only reached for invalid input, which retrying cannot fix.
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

// Execute runs classification without the fallback substitution.
func (h *Handler) Execute(ctx context.Context, input *Input) ([]intent.Intent, error) {
	return h.execute(ctx, input)
}
