package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retracehq/retrace/internal/compose"
	"github.com/retracehq/retrace/internal/models"
	"github.com/retracehq/retrace/internal/store"
)

// StartRunRequest is the body of POST /api/agents/{id}/regressions and
// POST /api/test-cases/{id}/executions.
type StartRunRequest struct {
	Overrides models.Overrides `json:"overrides"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// HealthResponse is returned by GET /api/healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// Orchestrator is the subset of orchestration consumed over HTTP.
type Orchestrator interface {
	Start(ctx context.Context, agentID string, overrides models.Overrides) (models.RegressionRun, error)
	ExecuteCase(ctx context.Context, testCaseID string, overrides models.Overrides) (models.TestLog, error)

	// Wait drains background runs; Serve calls it after the listener
	// closes and before the caller tears down the store.
	Wait(ctx context.Context) error
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAgentNotFound),
		errors.Is(err, store.ErrTestCaseNotFound),
		errors.Is(err, store.ErrRunNotFound),
		errors.Is(err, store.ErrLogNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// HandleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	var req StartRunRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives this request: dispatch on the server's lifetime
	// context, not r.Context(), so returning 202 does not cancel the run.
	run, err := s.orchestrator.Start(s.runContext(), agentID, req.Overrides)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), r.URL.Query().Get("agent_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if runs == nil {
		runs = []models.RegressionRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleExecuteCase(w http.ResponseWriter, r *http.Request) {
	testCaseID := chi.URLParam(r, "id")

	var req StartRunRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log, err := s.orchestrator.ExecuteCase(r.Context(), testCaseID, req.Overrides)
	if err != nil {
		if errors.Is(err, compose.ErrNoUserMessage) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	log, err := s.store.GetLog(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *Server) handleListRunLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.ListLogs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if logs == nil {
		logs = []models.TestLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if agents == nil {
		agents = []models.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}
