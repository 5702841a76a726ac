// internal/workers/ai-conversation/fetch-github-data/models.go
package fetchgithubdata

import "github-insight/internal/intent"

type Input struct {
	Username string   `json:"username"`
	Intents  []string `json:"intents"`
}

type Output struct {
	Username string                `json:"username"`
	Intents  []intent.Intent       `json:"intents"`
	Data     intent.AggregatedData `json:"data"`
}
