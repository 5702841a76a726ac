// internal/workers/ai-conversation/detect-intents/config.go
package detectintents

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
