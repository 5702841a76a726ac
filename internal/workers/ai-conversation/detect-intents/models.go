// internal/workers/ai-conversation/detect-intents/models.go
package detectintents

import "github-insight/internal/intent"

type Input struct {
	Question string `json:"message"`
	Username string `json:"username"`
}

type Output struct {
	Intents []intent.Intent `json:"intents"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}
