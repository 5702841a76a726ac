// internal/workers/ai-conversation/fetch-github-data/config.go
package fetchgithubdata

import (
	"time"

	"github-insight/internal/intent"
)

type Config struct {
	// Timeout bounds the whole job.
	Timeout time.Duration
	// FetchTimeout bounds each provider read.
	FetchTimeout time.Duration
	MaxIntents   int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		FetchTimeout: 5 * time.Second,
		MaxIntents:   intent.DefaultLimit,
	}
}
