package models

import (
	"context"
	"time"
)

// Turn is a recorded question and its answer.
type Turn struct {
	ID                string    `json:"id" db:"id"`
	RequestID         string    `json:"requestId" db:"request_id"`
	Username          string    `json:"username" db:"username"`
	Question          string    `json:"question" db:"question"`
	Intents           []string  `json:"intents" db:"intents"`
	Answer            string    `json:"answer" db:"answer"`
	SucceededViaModel bool      `json:"succeededViaModel" db:"succeeded_via_model"`
	FromCache         bool      `json:"fromCache" db:"from_cache"`
	DurationMs        int64     `json:"durationMs" db:"duration_ms"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
}

// TurnRepository defines turn history access.
type TurnRepository interface {
	Record(ctx context.Context, turn *Turn) error
	ListByUsername(ctx context.Context, username string, limit int) ([]*Turn, error)
}
