package mcpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mattferris/statecraft/internal/engine"
	"github.com/mattferris/statecraft/internal/environment"
	"github.com/mattferris/statecraft/pkg/doer"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mgr := environment.NewManager(environment.Roots{"base": {t.TempDir()}})
	registry := doer.NewRegistry()
	doer.RegisterBuiltins(registry)

	eng := engine.New(mgr, registry, nil, nil)
	eng.Opts.DefaultTop = "base"
	return NewServer(eng)
}

func TestDefaultEnv_UsesRequestedWhenPresent(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, "dev", s.defaultEnv("dev"))
}

func TestDefaultEnv_FallsBackToEngineDefault(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, "base", s.defaultEnv(""))
}

func TestMustJSON_RoundTripsStructuredValues(t *testing.T) {
	out := mustJSON(map[string]any{"agent_id": "web01", "ok": true})
	assert.Contains(t, out, "\"agent_id\": \"web01\"")
	assert.Contains(t, out, "\"ok\": true")
}

func TestMustJSON_NeverPanicsOnUnsupportedValue(t *testing.T) {
	out := mustJSON(make(chan int))
	assert.Contains(t, out, "error")
}
