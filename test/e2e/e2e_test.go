// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-insight/internal/app"
	"github-insight/internal/common/config"
	"github-insight/internal/common/logger"
)

// ==========================
// Fake upstream services
// ==========================

// githubAPI serves the handful of endpoints the octocat scenarios read.
type githubAPI struct {
	mu   sync.Mutex
	hits map[string]int
}

func newGitHubAPI(t *testing.T) (*githubAPI, *httptest.Server) {
	api := &githubAPI{hits: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(srv.Close)
	return api, srv
}

func (g *githubAPI) serve(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.hits[r.URL.Path]++
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/users/octocat":
		json.NewEncoder(w).Encode(map[string]interface{}{
			"login":        "octocat",
			"name":         "The Octocat",
			"location":     "San Francisco",
			"public_repos": 8,
			"followers":    100,
		})
	case "/users/octocat/repos":
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"name": "hello-world", "language": "Go", "stargazers_count": 10},
			{"name": "linguist", "language": "Ruby", "stargazers_count": 5},
			{"name": "octo-go", "language": "Go", "stargazers_count": 1},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}
}

func (g *githubAPI) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.hits {
		n += c
	}
	return n
}

// modelGateway answers classification and synthesis prompts.
type modelGateway struct {
	intents string
	answer  string
	down    atomic.Bool
	calls   atomic.Int32
}

func newModelGateway(t *testing.T, intents, answer string) (*modelGateway, *httptest.Server) {
	gw := &modelGateway{intents: intents, answer: answer}
	srv := httptest.NewServer(http.HandlerFunc(gw.serve))
	t.Cleanup(srv.Close)
	return gw, srv
}

func (m *modelGateway) serve(w http.ResponseWriter, r *http.Request) {
	m.calls.Add(1)
	if r.URL.Path != "/api/ai/generate" || m.down.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	text := m.answer
	if strings.Contains(req.Prompt, "comma-separated list") {
		text = m.intents
	}
	json.NewEncoder(w).Encode(map[string]string{"text": text})
}

// ==========================
// Harness
// ==========================

type harness struct {
	api     *githubAPI
	gateway *modelGateway
	server  *httptest.Server
	app     *app.App
}

func newHarness(t *testing.T, intents, answer string, tweak func(*config.Config)) *harness {
	t.Helper()
	api, githubSrv := newGitHubAPI(t)
	gw, gatewaySrv := newModelGateway(t, intents, answer)

	cfg := &config.Config{
		GitHub: config.GitHubConfig{BaseURL: githubSrv.URL},
		GenAI: config.GenAIConfig{
			Backend: config.GenAIBackendGateway,
			BaseURL: gatewaySrv.URL,
		},
	}
	if tweak != nil {
		tweak(cfg)
	}
	require.NoError(t, config.Prepare(cfg))

	pipeline, err := app.Build(context.Background(), cfg, logger.NewTestLogger(t), app.Options{})
	require.NoError(t, err)
	t.Cleanup(pipeline.Close)

	srv := httptest.NewServer(pipeline.Server())
	t.Cleanup(srv.Close)

	return &harness{api: api, gateway: gw, server: srv, app: pipeline}
}

func (h *harness) post(t *testing.T, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(h.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (h *harness) get(t *testing.T, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(h.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// ==========================
// Scenarios
// ==========================

func TestE2E_ChatAnswersAndCaches(t *testing.T) {
	h := newHarness(t, "repo_languages", "Octocat writes mostly Go, with some Ruby.", nil)
	question := map[string]string{"message": "What languages does this user use?", "username": "octocat"}

	status, body := h.post(t, "/api/chat", question)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Octocat writes mostly Go, with some Ruby.", body["message"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["fromCache"])
	assert.Equal(t, []interface{}{"repo_languages"}, body["intents"])
	assert.Equal(t, map[string]interface{}{
		"repo_languages": []interface{}{
			map[string]interface{}{"language": "Go", "count": float64(2)},
			map[string]interface{}{"language": "Ruby", "count": float64(1)},
		},
	}, body["data"])
	assert.Equal(t, int32(2), h.gateway.calls.Load())
	assert.Equal(t, 1, h.api.total())

	status, again := h.post(t, "/api/chat", question)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, again["fromCache"])
	assert.Equal(t, body["message"], again["message"])
	assert.Equal(t, body["requestId"], again["requestId"])
	assert.Equal(t, int32(2), h.gateway.calls.Load(), "cached answers must not reach the model")
	assert.Equal(t, 1, h.api.total())
}

func TestE2E_GenerateResponseSkipsClassification(t *testing.T) {
	h := newHarness(t, "gists", "Octocat is The Octocat from San Francisco.", nil)

	status, body := h.post(t, "/api/generate-response", map[string]interface{}{
		"message":  "Who is this?",
		"username": "octocat",
		"intents":  []string{"user_bio"},
	})

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []interface{}{"user_bio"}, body["intents"])
	assert.Equal(t, int32(1), h.gateway.calls.Load())
	profile, ok := body["data"].(map[string]interface{})["user_bio"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "The Octocat", profile["name"])
}

func TestE2E_ModelDownFallsBack(t *testing.T) {
	h := newHarness(t, "", "", nil)
	h.gateway.down.Store(true)

	status, detected := h.post(t, "/api/detect-intents", map[string]string{"message": "Tell me about octocat", "username": "octocat"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []interface{}{"user_bio", "recent_repos", "repo_languages"}, detected["intents"])
	assert.Equal(t, "fallback_used", detected["error"])

	status, body := h.post(t, "/api/chat", map[string]string{"message": "Tell me about octocat", "username": "octocat"})

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "ai_fallback", body["error"])
	msg, _ := body["message"].(string)
	assert.True(t, strings.HasPrefix(msg, "Here's what I found about octocat:\n\n"), msg)
	assert.Contains(t, msg, "👤 **Profile**: The Octocat")
	assert.Contains(t, msg, "📁 **Recent Repositories**:\n• hello-world (Go) - 10 ⭐")
	assert.Contains(t, msg, "💻 **Languages Used**:\n• Go: 2 repos\n• Ruby: 1 repos")
}

func TestE2E_UnknownUserMarksEachIntent(t *testing.T) {
	h := newHarness(t, "user_bio, gists", "", nil)

	status, body := h.post(t, "/api/chat", map[string]string{"message": "Who is ghost?", "username": "ghost"})

	require.Equal(t, http.StatusOK, status)
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"error": "Failed to fetch user_bio data."}, data["user_bio"])
	assert.Equal(t, map[string]interface{}{"error": "Failed to fetch gists data."}, data["gists"])
	assert.Contains(t, body["message"], "❌ user_bio: Failed to fetch user_bio data.")
}

func TestE2E_InvalidInput(t *testing.T) {
	h := newHarness(t, "user_bio", "unused", nil)

	status, body := h.post(t, "/api/chat", map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, int32(0), h.gateway.calls.Load())
	assert.Equal(t, 0, h.api.total())
}

func TestE2E_RedisBackedCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	h := newHarness(t, "repo_languages", "Go and Ruby.", func(cfg *config.Config) {
		cfg.Cache.Backend = config.CacheBackendRedis
		cfg.Database.Redis.Address = mr.Addr()
	})

	status, _ := h.post(t, "/api/chat", map[string]string{"message": "Languages?", "username": "octocat"})
	require.Equal(t, http.StatusOK, status)

	keys := mr.Keys()
	assert.Contains(t, keys, "ghi:provider:entry:github-octocat-repo_languages")
	assert.Contains(t, keys, "ghi:response:entry:response-octocat/Languages?")

	status, ready := h.get(t, "/ready")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", ready["status"])

	mr.Close()
	status, ready = h.get(t, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, ready["failures"], "redis")
}

func TestE2E_HistoryDisabled(t *testing.T) {
	h := newHarness(t, "user_bio", "hi", nil)

	status, _ := h.get(t, "/api/history?username=octocat")

	assert.Equal(t, http.StatusNotFound, status)
}
