// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github-insight/internal/common/validation"
	"github-insight/internal/models"
	answerquestion "github-insight/internal/workers/ai-conversation/answer-question"
	detectintents "github-insight/internal/workers/ai-conversation/detect-intents"
	generateresponse "github-insight/internal/workers/ai-conversation/generate-response"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	GeneralErrorCode = "general_error"

	maxBodyBytes = 1 << 20
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type IntentDetector interface {
	Detect(ctx context.Context, input *detectintents.Input) (*detectintents.Output, error)
}

type TurnRunner interface {
	Execute(ctx context.Context, input *answerquestion.Input) (*answerquestion.Result, error)
}

type HistoryReader interface {
	ListByUsername(ctx context.Context, username string, limit int) ([]*models.Turn, error)
}

// Check reports whether a backing service is reachable.
type Check func(ctx context.Context) error

// Dependencies wire the routes. History, Validator and Checks are optional.
type Dependencies struct {
	Detector  IntentDetector
	Turns     TurnRunner
	History   HistoryReader
	Validator *validation.Validator
	Checks    map[string]Check
	// Profiling mounts the runtime profiler under /debug/pprof/.
	Profiling bool
}

type Server struct {
	deps   Dependencies
	logger Logger
	now    func() time.Time
	mux    *http.ServeMux
}

func New(deps Dependencies, log Logger) *Server {
	s := &Server{
		deps:   deps,
		logger: log,
		now:    time.Now,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/detect-intents", s.handleDetectIntents)
	s.mux.HandleFunc("POST /api/generate-response", s.handleGenerateResponse)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	if s.deps.Profiling {
		s.mux.HandleFunc("GET /debug/pprof/", pprof.Index)
		s.mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
		s.mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
		s.mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
		s.mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// HTTPServer wraps the router with the configured timeouts.
func (s *Server) HTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

// ==========================
// Pipeline routes
// ==========================

func (s *Server) handleDetectIntents(w http.ResponseWriter, r *http.Request) {
	var input detectintents.Input
	raw, ok := s.decode(w, r, detectintents.TaskType, &input)
	if !ok {
		return
	}
	defer s.recoverTurn(w, input.Username)

	out, err := s.deps.Detector.Detect(r.Context(), &input)
	if err != nil {
		s.logger.Warn("detect-intents rejected", map[string]interface{}{
			"error": err.Error(),
			"bytes": len(raw),
		})
		writeError(w, http.StatusBadRequest, "Message and username are required")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGenerateResponse(w http.ResponseWriter, r *http.Request) {
	var input answerquestion.Input
	if _, ok := s.decode(w, r, generateresponse.TaskType, &input); !ok {
		return
	}
	if input.Intents == nil {
		writeError(w, http.StatusBadRequest, "Message, username, and intents are required")
		return
	}
	s.runTurn(w, r, &input)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var input answerquestion.Input
	if _, ok := s.decode(w, r, answerquestion.TaskType, &input); !ok {
		return
	}
	input.Intents = nil
	s.runTurn(w, r, &input)
}

func (s *Server) runTurn(w http.ResponseWriter, r *http.Request, input *answerquestion.Input) {
	defer s.recoverTurn(w, input.Username)

	result, err := s.deps.Turns.Execute(r.Context(), input)
	if errors.Is(err, answerquestion.ErrInputValidation) {
		writeError(w, http.StatusBadRequest, "Message and username are required")
		return
	}
	if err != nil {
		s.writeApology(w, input.Username, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Output())
}

// recoverTurn turns a panic inside a route into the apology response.
func (s *Server) recoverTurn(w http.ResponseWriter, username string) {
	if rec := recover(); rec != nil {
		s.writeApology(w, username, fmt.Errorf("panic: %v", rec))
	}
}

func (s *Server) writeApology(w http.ResponseWriter, username string, err error) {
	s.logger.Error("turn failed", map[string]interface{}{
		"username": username,
		"error":    err.Error(),
	})
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"message": Apology(username),
		"success": false,
		"error":   GeneralErrorCode,
	})
}

// Apology is the message returned when a turn fails unexpectedly.
func Apology(username string) string {
	return fmt.Sprintf("Sorry, I couldn't fetch GitHub data for %s. Please check if the username is correct and try again.", username)
}

// ==========================
// History and health
// ==========================

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "History is not enabled")
		return
	}
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		writeError(w, http.StatusBadRequest, "Username is required")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Limit must be a non-negative integer")
			return
		}
		limit = n
	}

	turns, err := s.deps.History.ListByUsername(r.Context(), username, limit)
	if err != nil {
		s.logger.Error("history read failed", map[string]interface{}{
			"username": username,
			"error":    err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "Could not load history")
		return
	}
	if turns == nil {
		turns = []*models.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username": username,
		"turns":    turns,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failures := map[string]string{}
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{
			"failures": failures,
		})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "not_ready",
			"failures": failures,
			"time":     s.now().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   s.now().Format(time.RFC3339),
	})
}

// ==========================
// Helpers
// ==========================

// decode reads the JSON body into v and checks it against the task type's
// input schema when a validator is configured.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, taskType string, v interface{}) ([]byte, bool) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return nil, false
	}

	if s.deps.Validator != nil {
		res, err := s.deps.Validator.ValidateJSON(taskType, raw)
		if err != nil && !errors.Is(err, validation.ErrNoSchema) {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return nil, false
		}
		if err == nil && !res.Valid {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":   "Invalid request",
				"details": res.GetErrorMessages(),
			})
			return nil, false
		}
	}

	if err := json.Unmarshal(raw, v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return nil, false
	}
	return raw, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
