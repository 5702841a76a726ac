// internal/workers/ai-conversation/generate-response/models.go
package generateresponse

import (
	"github-insight/internal/intent"
	"github-insight/internal/models"
)

type Input struct {
	Question  string                `json:"message"`
	Username  string                `json:"username"`
	Intents   []string              `json:"intents"`
	Data      intent.AggregatedData `json:"data"`
	RequestID string                `json:"requestId,omitempty"`
}

type Output struct {
	Message   string                `json:"message"`
	Success   bool                  `json:"success"`
	Error     string                `json:"error,omitempty"`
	Data      intent.AggregatedData `json:"data"`
	Intents   []intent.Intent       `json:"intents"`
	RequestID string                `json:"requestId,omitempty"`
}

// NewOutput is the response body for an answer; fallback answers carry
// the "ai_fallback" error code.
func NewOutput(answer *models.FinalAnswer) *Output {
	out := &Output{
		Message:   answer.Text,
		Success:   answer.SucceededViaModel,
		Data:      answer.AggregatedData,
		Intents:   answer.Intents,
		RequestID: answer.RequestID,
	}
	if !answer.SucceededViaModel {
		out.Error = FallbackErrorCode
	}
	return out
}
