// Package history records answered turns in PostgreSQL.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github-insight/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const DefaultListLimit = 20

var ErrHistoryWrite = errors.New("HISTORY_WRITE_FAILED")

const schema = `
CREATE TABLE IF NOT EXISTS chat_turns (
	id                  UUID PRIMARY KEY,
	request_id          TEXT NOT NULL,
	username            TEXT NOT NULL,
	question            TEXT NOT NULL,
	intents             TEXT[] NOT NULL DEFAULT '{}',
	answer              TEXT NOT NULL,
	succeeded_via_model BOOLEAN NOT NULL,
	from_cache          BOOLEAN NOT NULL,
	duration_ms         BIGINT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_turns_username_created_at ON chat_turns (username, created_at DESC);
`

const insertTurn = `INSERT INTO chat_turns
	(id, request_id, username, question, intents, answer, succeeded_via_model, from_cache, duration_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const selectTurns = `SELECT id, request_id, username, question, intents, answer, succeeded_via_model, from_cache, duration_ms, created_at
	FROM chat_turns WHERE username = $1 ORDER BY created_at DESC LIMIT $2`

// PostgresRecorder implements models.TurnRepository.
type PostgresRecorder struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db, now: time.Now}
}

// EnsureSchema creates the chat_turns table when missing.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create chat_turns: %w", err)
	}
	return nil
}

// Record stores turn, filling ID and CreatedAt when unset.
func (r *PostgresRecorder) Record(ctx context.Context, turn *models.Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = r.now().UTC()
	}

	_, err := r.db.ExecContext(ctx, insertTurn,
		turn.ID,
		turn.RequestID,
		turn.Username,
		turn.Question,
		pq.Array(turn.Intents),
		turn.Answer,
		turn.SucceededViaModel,
		turn.FromCache,
		turn.DurationMs,
		turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHistoryWrite, err)
	}
	return nil
}

func (r *PostgresRecorder) ListByUsername(ctx context.Context, username string, limit int) ([]*models.Turn, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, selectTurns, username, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []*models.Turn
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(
			&t.ID,
			&t.RequestID,
			&t.Username,
			&t.Question,
			pq.Array(&t.Intents),
			&t.Answer,
			&t.SucceededViaModel,
			&t.FromCache,
			&t.DurationMs,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// NopRecorder discards turns; used when history is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *models.Turn) error { return nil }

func (NopRecorder) ListByUsername(context.Context, string, int) ([]*models.Turn, error) {
	return nil, nil
}
