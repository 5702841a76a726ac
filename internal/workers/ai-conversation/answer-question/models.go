// internal/workers/ai-conversation/answer-question/models.go
package answerquestion

import (
	"github-insight/internal/intent"
	"github-insight/internal/models"
)

type Input struct {
	Question string `json:"message"`
	Username string `json:"username"`
	// Intents, when present, skips classification.
	Intents []string `json:"intents,omitempty"`
}

type Output struct {
	Message   string                `json:"message"`
	Success   bool                  `json:"success"`
	Error     string                `json:"error,omitempty"`
	Data      intent.AggregatedData `json:"data"`
	Intents   []intent.Intent       `json:"intents"`
	RequestID string                `json:"requestId,omitempty"`
	FromCache bool                  `json:"fromCache"`
}

// Result is a finished turn and the states it passed through.
type Result struct {
	Answer    *models.FinalAnswer
	FromCache bool
	Trace     []State
}

func (r *Result) Output() *Output {
	out := &Output{
		Message:   r.Answer.Text,
		Success:   r.Answer.SucceededViaModel,
		Data:      r.Answer.AggregatedData,
		Intents:   r.Answer.Intents,
		RequestID: r.Answer.RequestID,
		FromCache: r.FromCache,
	}
	if !r.Answer.SucceededViaModel {
		out.Error = FallbackErrorCode
	}
	return out
}
