package models

import (
	"time"

	"github-insight/internal/intent"
)

// Query is one question about one GitHub user.
type Query struct {
	Subject  string `json:"username"`
	Question string `json:"message"`
}

// FinalAnswer is the outcome of a turn. Its JSON form is the response body
// served to callers and the value kept in the response cache.
type FinalAnswer struct {
	Text              string                `json:"message"`
	SucceededViaModel bool                  `json:"success"`
	AggregatedData    intent.AggregatedData `json:"data"`
	Intents           []intent.Intent       `json:"intents"`
	RequestID         string                `json:"requestId,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
}

// Source names where the answer text came from.
func (a *FinalAnswer) Source() string {
	if a.SucceededViaModel {
		return "model"
	}
	return "fallback"
}
