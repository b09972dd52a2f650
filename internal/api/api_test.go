package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattferris/statecraft/internal/config"
	"github.com/mattferris/statecraft/internal/engine"
	"github.com/mattferris/statecraft/internal/environment"
	"github.com/mattferris/statecraft/pkg/doer"
)

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func newTestServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	root := t.TempDir()

	writeFile(t, root, "top.sls", "base:\n  '*':\n    - webserver\n")
	writeFile(t, root, "webserver.sls", "touch-file:\n  cmd.run:\n    - name: \"true\"\n")

	mgr := environment.NewManager(environment.Roots{"base": {root}})
	registry := doer.NewRegistry()
	doer.RegisterBuiltins(registry)

	eng := engine.New(mgr, registry, map[string]any{"os": "linux"}, map[string]any{})
	eng.Opts.DefaultTop = "base"

	cfg := config.DefaultConfig()
	cfg.Compiler.DefaultTop = "base"

	return NewServer(cfg, eng), cfg
}

func doRequest(t *testing.T, srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleVersion(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/version", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp VersionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "statecraftd", resp.Service)
}

func TestHandleListEnvironments(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/environments", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envs map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envs))
	assert.Contains(t, envs, "base")
}

func TestHandleShowTop(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/show/top", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleShowHighstateRequiresAgentID(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/show/highstate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleShowHighstate(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/show/highstate?agent_id=web01", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleShowLowstate(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/show/lowstate?agent_id=web01", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCreateRunAndGetRun(t *testing.T) {
	srv, _ := newTestServer(t)

	body, err := json.Marshal(RunRequest{AgentID: "web01", Test: true})
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodPost, "/runs/", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var run RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.True(t, run.TestMode)
	assert.NotEmpty(t, run.ID)

	getRec := doRequest(t, srv, http.MethodGet, "/runs/"+run.ID, nil)
	assert.Equal(t, http.StatusOK, getRec.Code)

	listRec := doRequest(t, srv, http.MethodGet, "/runs/", nil)
	assert.Equal(t, http.StatusOK, listRec.Code)
	var ids []string
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &ids))
	assert.Contains(t, ids, run.ID)
}

func TestHandleCreateRunRequiresAgentID(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(RunRequest{Test: true})
	rec := doRequest(t, srv, http.MethodPost, "/runs/", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyAuthRejectsMissingKey(t *testing.T) {
	srv, cfg := newTestServer(t)
	cfg.API.APIKey = "secret"
	srv.setupRouter()

	rec := doRequest(t, srv, http.MethodGet, "/environments", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// health/version stay open even with an API key configured.
	rec = doRequest(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuthAcceptsHeaderKey(t *testing.T) {
	srv, cfg := newTestServer(t)
	cfg.API.APIKey = "secret"
	srv.setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/environments", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
