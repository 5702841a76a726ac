package history

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github-insight/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRecorder(t *testing.T) (*PostgresRecorder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := NewPostgresRecorder(db)
	r.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r, mock
}

func TestPostgresRecorder_Record(t *testing.T) {
	r, mock := newMockRecorder(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chat_turns")).
		WithArgs(
			sqlmock.AnyArg(),
			"req-1",
			"octocat",
			"What languages?",
			`{"repo_languages"}`,
			"Go, mostly.",
			true,
			false,
			int64(42),
			time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	turn := &models.Turn{
		RequestID:         "req-1",
		Username:          "octocat",
		Question:          "What languages?",
		Intents:           []string{"repo_languages"},
		Answer:            "Go, mostly.",
		SucceededViaModel: true,
		DurationMs:        42,
	}
	err := r.Record(context.Background(), turn)

	require.NoError(t, err)
	assert.NotEmpty(t, turn.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorder_Record_Error(t *testing.T) {
	r, mock := newMockRecorder(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chat_turns")).
		WillReturnError(errors.New("connection refused"))

	err := r.Record(context.Background(), &models.Turn{Username: "octocat"})

	assert.True(t, errors.Is(err, ErrHistoryWrite))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorder_ListByUsername(t *testing.T) {
	r, mock := newMockRecorder(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "request_id", "username", "question", "intents", "answer",
		"succeeded_via_model", "from_cache", "duration_ms", "created_at",
	}).
		AddRow("t-2", "req-2", "octocat", "Who follows?", "{followers}", "hubot", false, true, int64(3), at).
		AddRow("t-1", "req-1", "octocat", "What languages?", "{user_bio,repo_languages}", "Go", true, false, int64(900), at.Add(-time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, request_id")).
		WithArgs("octocat", 5).
		WillReturnRows(rows)

	turns, err := r.ListByUsername(context.Background(), "octocat", 5)

	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "t-2", turns[0].ID)
	assert.Equal(t, []string{"followers"}, turns[0].Intents)
	assert.True(t, turns[0].FromCache)
	assert.Equal(t, []string{"user_bio", "repo_languages"}, turns[1].Intents)
	assert.Equal(t, int64(900), turns[1].DurationMs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorder_ListByUsername_DefaultLimit(t *testing.T) {
	r, mock := newMockRecorder(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, request_id")).
		WithArgs("octocat", DefaultListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	turns, err := r.ListByUsername(context.Background(), "octocat", 0)

	require.NoError(t, err)
	assert.Empty(t, turns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorder_EnsureSchema(t *testing.T) {
	r, mock := newMockRecorder(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS chat_turns")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNopRecorder(t *testing.T) {
	var repo models.TurnRepository = NopRecorder{}

	assert.NoError(t, repo.Record(context.Background(), &models.Turn{}))
	turns, err := repo.ListByUsername(context.Background(), "octocat", 10)
	assert.NoError(t, err)
	assert.Nil(t, turns)
}

var _ models.TurnRepository = (*PostgresRecorder)(nil)
