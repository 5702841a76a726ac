// internal/server/server_test.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github-insight/internal/common/validation"
	"github-insight/internal/intent"
	"github-insight/internal/models"
	answerquestion "github-insight/internal/workers/ai-conversation/answer-question"
	detectintents "github-insight/internal/workers/ai-conversation/detect-intents"
	"github-insight/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test doubles
// ==========================

type TestLogger struct {
	t *testing.T
}

func (l TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, fields)
}

func (l TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, fields)
}

func (l TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, fields)
}

type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Detect(ctx context.Context, input *detectintents.Input) (*detectintents.Output, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*detectintents.Output)
	return out, args.Error(1)
}

type MockTurns struct {
	mock.Mock
}

func (m *MockTurns) Execute(ctx context.Context, input *answerquestion.Input) (*answerquestion.Result, error) {
	args := m.Called(ctx, input)
	res, _ := args.Get(0).(*answerquestion.Result)
	return res, args.Error(1)
}

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) ListByUsername(ctx context.Context, username string, limit int) ([]*models.Turn, error) {
	args := m.Called(ctx, username, limit)
	turns, _ := args.Get(0).([]*models.Turn)
	return turns, args.Error(1)
}

func newTestServer(t *testing.T, deps Dependencies) *Server {
	t.Helper()
	if deps.Validator == nil {
		v, err := validation.NewValidator(registry.Default())
		require.NoError(t, err)
		deps.Validator = v
	}
	s := New(deps, TestLogger{t})
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func modelResult(text string) *answerquestion.Result {
	return &answerquestion.Result{
		Answer: &models.FinalAnswer{
			Text:              text,
			SucceededViaModel: true,
			AggregatedData: intent.AggregatedData{
				intent.RepoLanguages: {Value: []intent.LanguageCount{{Language: "Go", Count: 2}}},
			},
			Intents:   []intent.Intent{intent.RepoLanguages},
			RequestID: "req-1",
		},
	}
}

// ==========================
// Pipeline routes
// ==========================

func TestServer_Chat(t *testing.T) {
	turns := &MockTurns{}
	turns.On("Execute", mock.Anything, &answerquestion.Input{Question: "What languages?", Username: "octocat"}).
		Return(modelResult("Mostly Go."), nil).Once()
	s := newTestServer(t, Dependencies{Turns: turns})

	rec, body := do(t, s, http.MethodPost, "/api/chat", `{"message":"What languages?","username":"octocat","intents":["gists"]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mostly Go.", body["message"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "req-1", body["requestId"])
	assert.Equal(t, []interface{}{"repo_languages"}, body["intents"])
	assert.NotContains(t, body, "error")
	turns.AssertExpectations(t)
}

func TestServer_Chat_Fallback(t *testing.T) {
	result := modelResult("Here's what I found about octocat:\n\n💻 **Languages Used**:\n• Go: 2 repos")
	result.Answer.SucceededViaModel = false
	turns := &MockTurns{}
	turns.On("Execute", mock.Anything, mock.Anything).Return(result, nil).Once()
	s := newTestServer(t, Dependencies{Turns: turns})

	rec, body := do(t, s, http.MethodPost, "/api/chat", `{"message":"What languages?","username":"octocat"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "ai_fallback", body["error"])
}

func TestServer_Chat_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing username", `{"message":"hi"}`},
		{"blank message", `{"message":"   ","username":"octocat"}`},
		{"not json", `{"message":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := &MockTurns{}
			s := newTestServer(t, Dependencies{Turns: turns})

			rec, body := do(t, s, http.MethodPost, "/api/chat", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, body["error"])
			turns.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
		})
	}
}

func TestServer_Chat_ValidationErrorFromPipeline(t *testing.T) {
	turns := &MockTurns{}
	turns.On("Execute", mock.Anything, mock.Anything).
		Return(&answerquestion.Result{Trace: []answerquestion.State{answerquestion.StateErrored}}, answerquestion.ErrInputValidation).Once()
	s := New(Dependencies{Turns: turns}, TestLogger{t})

	rec, body := do(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message and username are required", body["error"])
}

func TestServer_Chat_PanicReturnsApology(t *testing.T) {
	turns := &MockTurns{}
	turns.On("Execute", mock.Anything, mock.Anything).Panic("provider exploded").Once()
	s := newTestServer(t, Dependencies{Turns: turns})

	rec, body := do(t, s, http.MethodPost, "/api/chat", `{"message":"hi","username":"ghost"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Sorry, I couldn't fetch GitHub data for ghost. Please check if the username is correct and try again.", body["message"])
	assert.Equal(t, false, body["success"])
	assert.Equal(t, GeneralErrorCode, body["error"])
}

func TestServer_Chat_UnexpectedError(t *testing.T) {
	turns := &MockTurns{}
	turns.On("Execute", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()
	s := newTestServer(t, Dependencies{Turns: turns})

	rec, body := do(t, s, http.MethodPost, "/api/chat", `{"message":"hi","username":"ghost"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, Apology("ghost"), body["message"])
}

func TestServer_GenerateResponse(t *testing.T) {
	turns := &MockTurns{}
	turns.On("Execute", mock.Anything, &answerquestion.Input{
		Question: "What languages?",
		Username: "octocat",
		Intents:  []string{"repo_languages"},
	}).Return(modelResult("Mostly Go."), nil).Once()
	s := newTestServer(t, Dependencies{Turns: turns})

	rec, body := do(t, s, http.MethodPost, "/api/generate-response",
		`{"message":"What languages?","username":"octocat","intents":["repo_languages"]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mostly Go.", body["message"])
	turns.AssertExpectations(t)
}

func TestServer_GenerateResponse_RequiresIntents(t *testing.T) {
	turns := &MockTurns{}

	t.Run("schema", func(t *testing.T) {
		s := newTestServer(t, Dependencies{Turns: turns})
		rec, _ := do(t, s, http.MethodPost, "/api/generate-response", `{"message":"hi","username":"octocat"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no validator", func(t *testing.T) {
		s := New(Dependencies{Turns: turns}, TestLogger{t})
		rec, body := do(t, s, http.MethodPost, "/api/generate-response", `{"message":"hi","username":"octocat"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Message, username, and intents are required", body["error"])
	})

	turns.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestServer_DetectIntents(t *testing.T) {
	detector := &MockDetector{}
	detector.On("Detect", mock.Anything, &detectintents.Input{Question: "Languages?", Username: "octocat"}).
		Return(&detectintents.Output{Intents: []intent.Intent{intent.RepoLanguages}, Success: true}, nil).Once()
	s := newTestServer(t, Dependencies{Detector: detector})

	rec, body := do(t, s, http.MethodPost, "/api/detect-intents", `{"message":"Languages?","username":"octocat"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"repo_languages"}, body["intents"])
	assert.Equal(t, true, body["success"])
	detector.AssertExpectations(t)
}

func TestServer_DetectIntents_Fallback(t *testing.T) {
	detector := &MockDetector{}
	detector.On("Detect", mock.Anything, mock.Anything).Return(&detectintents.Output{
		Intents: intent.Fallback(),
		Error:   detectintents.FallbackErrorCode,
		Message: detectintents.FallbackMessage,
	}, nil).Once()
	s := newTestServer(t, Dependencies{Detector: detector})

	rec, body := do(t, s, http.MethodPost, "/api/detect-intents", `{"message":"Languages?","username":"octocat"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"user_bio", "recent_repos", "repo_languages"}, body["intents"])
	assert.Equal(t, "fallback_used", body["error"])
	assert.Equal(t, false, body["success"])
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	rec, _ := do(t, s, http.MethodGet, "/api/chat", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// ==========================
// History and health
// ==========================

func TestServer_History(t *testing.T) {
	history := &MockHistory{}
	history.On("ListByUsername", mock.Anything, "octocat", 5).Return([]*models.Turn{
		{ID: "t-1", Username: "octocat", Question: "What languages?", Answer: "Go"},
	}, nil).Once()
	s := newTestServer(t, Dependencies{History: history})

	rec, body := do(t, s, http.MethodGet, "/api/history?username=octocat&limit=5", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	turns, ok := body["turns"].([]interface{})
	require.True(t, ok)
	require.Len(t, turns, 1)
	assert.Equal(t, "t-1", turns[0].(map[string]interface{})["id"])
	history.AssertExpectations(t)
}

func TestServer_History_Errors(t *testing.T) {
	failing := &MockHistory{}
	failing.On("ListByUsername", mock.Anything, "octocat", 0).Return(nil, errors.New("db down"))

	tests := []struct {
		name    string
		history HistoryReader
		query   string
		status  int
	}{
		{"disabled", nil, "?username=octocat", http.StatusNotFound},
		{"missing username", failing, "", http.StatusBadRequest},
		{"bad limit", failing, "?username=octocat&limit=-1", http.StatusBadRequest},
		{"store error", failing, "?username=octocat", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Dependencies{History: tt.history})
			rec, _ := do(t, s, http.MethodGet, "/api/history"+tt.query, "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestServer_History_EmptyList(t *testing.T) {
	history := &MockHistory{}
	history.On("ListByUsername", mock.Anything, "nobody", 0).Return(nil, nil).Once()
	s := newTestServer(t, Dependencies{History: history})

	rec, body := do(t, s, http.MethodGet, "/api/history?username=nobody", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, body["turns"])
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	rec, body := do(t, s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2024-03-01T12:00:00Z", body["time"])
}

func TestServer_Ready(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		s := newTestServer(t, Dependencies{Checks: map[string]Check{
			"redis": func(context.Context) error { return nil },
		}})
		rec, body := do(t, s, http.MethodGet, "/ready", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ready", body["status"])
	})

	t.Run("failing check", func(t *testing.T) {
		s := newTestServer(t, Dependencies{Checks: map[string]Check{
			"redis":    func(context.Context) error { return nil },
			"postgres": func(context.Context) error { return errors.New("connection refused") },
		}})
		rec, body := do(t, s, http.MethodGet, "/ready", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, map[string]interface{}{"postgres": "connection refused"}, body["failures"])
	})
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	rec, _ := do(t, s, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# TYPE")
}

func TestServer_Profiling(t *testing.T) {
	tests := []struct {
		name      string
		profiling bool
		want      int
	}{
		{"mounted when enabled", true, http.StatusOK},
		{"absent by default", false, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Dependencies{Profiling: tt.profiling})

			for _, path := range []string{"/debug/pprof/", "/debug/pprof/cmdline"} {
				rec, _ := do(t, s, http.MethodGet, path, "")
				assert.Equal(t, tt.want, rec.Code, path)
			}
		})
	}
}
