package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattferris/statecraft/internal/environment"
	"github.com/mattferris/statecraft/pkg/doer"
	"github.com/mattferris/statecraft/pkg/state"
)

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	root := t.TempDir()

	writeFile(t, root, "top.sls", ""+
		"base:\n"+
		"  '*':\n"+
		"    - webserver\n")

	writeFile(t, root, "webserver.sls", ""+
		"touch-file:\n"+
		"  cmd.run:\n"+
		"    - name: \"true\"\n")

	mgr := environment.NewManager(environment.Roots{"base": {root}})
	registry := doer.NewRegistry()
	registry.Register(doer.Registration{Module: "cmd", Doer: cmdDoer{}})

	eng := New(mgr, registry, map[string]any{"os": "linux"}, map[string]any{})
	eng.Opts.DefaultTop = "base"
	return eng
}

// cmdDoer is a minimal stand-in for pkg/doer/cmd that never shells out,
// keeping this test independent of the host's /bin/sh.
type cmdDoer struct{}

func (cmdDoer) Metadata() state.DoerMetadata {
	return state.DoerMetadata{Module: "cmd", Functions: []string{"run"}}
}
func (cmdDoer) ModInit(ctx context.Context, ic *state.InvocationContext) error { return nil }
func (cmdDoer) Invoke(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error) {
	if ic.TestMode {
		return state.ReturnRecord{Status: state.StatusPending, TestMode: true, Changes: map[string]any{"cmd": ic.Chunk.Name}}, nil
	}
	return state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"cmd": ic.Chunk.Name}}, nil
}

func TestEngine_ShowTop(t *testing.T) {
	eng := newTestEngine(t)

	data, err := eng.ShowTop()
	require.NoError(t, err)
	require.Contains(t, data, "base")
	assert.Equal(t, "*", data["base"][0].Target)
	assert.Equal(t, []string{"webserver"}, data["base"][0].Units)
}

func TestEngine_ResolveUnits(t *testing.T) {
	eng := newTestEngine(t)

	units, err := eng.ResolveUnits("web01")
	require.NoError(t, err)
	assert.Equal(t, []string{"webserver"}, units["base"])
}

func TestEngine_ShowHighstateAndLowstate(t *testing.T) {
	eng := newTestEngine(t)

	units, err := eng.ShowHighstate("web01", "base")
	require.NoError(t, err)
	require.Len(t, units, 1)

	ls, diags, err := eng.ShowLowstate("web01", "base")
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, ls.Chunks, 1)
	assert.Equal(t, "cmd", ls.Chunks[0].Module)
}

func TestEngine_RunRecordsHistory(t *testing.T) {
	eng := newTestEngine(t)

	record, err := eng.Run(context.Background(), "web01", "base", false)
	require.NoError(t, err)
	assert.True(t, record.Succeeded())

	entry, ok := eng.Runs.Get(record.ID)
	require.True(t, ok)
	assert.Same(t, record, entry.Record)

	ids := eng.Runs.List()
	require.Len(t, ids, 1)
	assert.Equal(t, record.ID, ids[0])
}

func TestEngine_RunTestModePredictsWithoutApplying(t *testing.T) {
	eng := newTestEngine(t)

	record, err := eng.Run(context.Background(), "web01", "base", true)
	require.NoError(t, err)
	for _, res := range record.Results {
		assert.True(t, res.TestMode)
	}
}
