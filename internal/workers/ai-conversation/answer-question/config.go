// internal/workers/ai-conversation/answer-question/config.go
package answerquestion

import (
	"time"

	"github-insight/internal/intent"
)

type Config struct {
	Timeout    time.Duration
	MaxIntents int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    90 * time.Second,
		MaxIntents: intent.DefaultLimit,
	}
}
