package generateresponse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github-insight/internal/common/metrics"
	"github-insight/internal/intent"
	"github-insight/internal/llm"
	"github-insight/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "generate-response"

	FallbackErrorCode = "ai_fallback"
)

// Model call outcomes, as labelled on metrics.ModelCalls.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeEmpty       = "empty"
	OutcomeEncodeError = "encode_error"
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

type Handler struct {
	config    *Config
	generator llm.Generator
	logger    Logger
	now       func() time.Time
}

func NewHandler(config *Config, generator llm.Generator, log Logger) *Handler {
	return &Handler{
		config:    config,
		generator: generator,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
		now: time.Now,
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

	answer, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, NewOutput(answer))
}

func (h *Handler) execute(ctx context.Context, input *Input) (*models.FinalAnswer, error) {
	if strings.TrimSpace(input.Question) == "" || strings.TrimSpace(input.Username) == "" {
		return nil, fmt.Errorf("%w: message and username are required", ErrInputValidation)
	}

	intents, _ := intent.ParseList(input.Intents)
	data := input.Data
	if data == nil {
		data = intent.AggregatedData{}
	}

	requestID := input.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return h.Synthesize(ctx, models.Query{Subject: input.Username, Question: input.Question}, intents, data, requestID), nil
}

// Synthesize always yields an answer: a model failure or an empty reply
// falls back to the template renderer.
func (h *Handler) Synthesize(ctx context.Context, q models.Query, intents []intent.Intent, data intent.AggregatedData, requestID string) *models.FinalAnswer {
	answer := &models.FinalAnswer{
		AggregatedData: data,
		Intents:        intents,
		RequestID:      requestID,
		CreatedAt:      h.now().UTC(),
	}

	text, outcome, err := h.generate(ctx, q.Question, intents, data)
	metrics.ModelCalls.WithLabelValues(TaskType, outcome).Inc()
	if err == nil {
		metrics.Answers.WithLabelValues("model").Inc()
		answer.Text = text
		answer.SucceededViaModel = true
		return answer
	}

	metrics.Answers.WithLabelValues("fallback").Inc()
	h.logger.Warn("synthesis failed, rendering fallback", map[string]interface{}{
		"username":  q.Subject,
		"requestId": requestID,
		"outcome":   outcome,
		"error":     err.Error(),
	})
	answer.Text = RenderFallback(q.Subject, intents, data)
	return answer
}

// generate reports the model call outcome alongside the reply. A prompt that
// cannot be encoded never reaches the model.
func (h *Handler) generate(ctx context.Context, question string, intents []intent.Intent, data intent.AggregatedData) (string, string, error) {
	prompt, err := BuildPrompt(question, intents, data)
	if err != nil {
		return "", OutcomeEncodeError, err
	}
	text, err := h.generator.Generate(ctx, prompt)
	if err != nil {
		return "", OutcomeError, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", OutcomeEmpty, llm.ErrEmptyCompletion
	}
	return text, OutcomeOK, nil
}

// BuildPrompt embeds the question, the intent list and the indented data.
func BuildPrompt(question string, intents []intent.Intent, data intent.AggregatedData) (string, error) {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode data: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The user asked: \"%s\"\n\n", question)
	fmt.Fprintf(&b, "Below is the structured GitHub data for intents: %s.\n\n", strings.Join(intent.Strings(intents), ", "))
	b.Write(payload)
	b.WriteString("\n\nBased on this data, generate an insightful, human-friendly response that addresses all relevant parts of the user's query. ")
	b.WriteString("Structure the result nicely, provide space when required and use bullet points or numbered lists where appropriate. ")
	b.WriteString("Keep it concise but informative.")
	return b.String(), nil
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*models.FinalAnswer, error) {
	return h.execute(ctx, input)
}
