package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattferris/statecraft/pkg/state"
)

// HealthResponse is the response for /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse is the response for /version.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RunRequest is the body of POST /runs.
type RunRequest struct {
	AgentID     string `json:"agent_id"`
	Environment string `json:"environment"`
	Test        bool   `json:"test"`
}

// RunResponse summarizes a completed run.
type RunResponse struct {
	ID          string                        `json:"id"`
	Environment string                        `json:"environment"`
	TestMode    bool                          `json:"test_mode"`
	Started     time.Time                     `json:"started"`
	Finished    time.Time                     `json:"finished"`
	Aborted     bool                          `json:"aborted"`
	Succeeded   bool                          `json:"succeeded"`
	Results     map[string]state.ReturnRecord `json:"results"`
	Diagnostics []state.Diagnostic            `json:"diagnostics,omitempty"`
}

func toRunResponse(r *state.RunRecord) RunResponse {
	return RunResponse{
		ID:          r.ID,
		Environment: r.Environment,
		TestMode:    r.TestMode,
		Started:     r.Started,
		Finished:    r.Finished,
		Aborted:     r.Aborted,
		Succeeded:   r.Succeeded(),
		Results:     r.Results,
		Diagnostics: r.Diagnostics,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "statecraftd"})
}

// handleListEnvironments returns the configured saltenvs and their
// source roots (§6 "Environment").
func (s *Server) handleListEnvironments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Loader.Environments())
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	if req.Environment == "" {
		req.Environment = s.cfg.Compiler.DefaultTop
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.cfg.API.RequestTimeout)*time.Second)
	defer cancel()

	record, err := s.eng.Run(ctx, req.AgentID, req.Environment, req.Test)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toRunResponse(record))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Runs.List())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.eng.Runs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(entry.Record))
}

func (s *Server) handleShowTop(w http.ResponseWriter, r *http.Request) {
	data, err := s.eng.ShowTop()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleShowHighstate(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	saltenv := r.URL.Query().Get("environment")
	if saltenv == "" {
		saltenv = s.cfg.Compiler.DefaultTop
	}
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id query parameter is required")
		return
	}

	units, err := s.eng.ShowHighstate(agentID, saltenv)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (s *Server) handleShowLowstate(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	saltenv := r.URL.Query().Get("environment")
	if saltenv == "" {
		saltenv = s.cfg.Compiler.DefaultTop
	}
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id query parameter is required")
		return
	}

	ls, diags, err := s.eng.ShowLowstate(agentID, saltenv)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Chunks      []*state.Chunk      `json:"chunks"`
		Diagnostics []state.Diagnostic  `json:"diagnostics,omitempty"`
	}{Chunks: ls.Chunks, Diagnostics: diags})
}
