package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattferris/statecraft/pkg/doer"
	"github.com/mattferris/statecraft/pkg/state"
)

// scriptedDoer returns a fixed return record for every function it
// exposes, and counts how many times it was invoked (in real mode) vs.
// asked to predict (test mode), enough to exercise prereq/onchanges.
type scriptedDoer struct {
	module       string
	realResult   state.ReturnRecord
	testResult   state.ReturnRecord
	invokeCount  int
	testCount    int
}

func (d *scriptedDoer) Metadata() state.DoerMetadata {
	return state.DoerMetadata{Module: d.module, Functions: []string{"run"}}
}
func (d *scriptedDoer) ModInit(ctx context.Context, ic *state.InvocationContext) error { return nil }
func (d *scriptedDoer) Invoke(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error) {
	if ic.TestMode {
		d.testCount++
		return d.testResult, nil
	}
	d.invokeCount++
	return d.realResult, nil
}

func newExecutor(modules map[string]*scriptedDoer) *Executor {
	r := doer.NewRegistry()
	for name, d := range modules {
		r.Register(doer.Registration{Module: name, Doer: d})
	}
	r.SelectAll(nil)
	return &Executor{Registry: r}
}

func chunk(id, module string) *state.Chunk {
	return &state.Chunk{ID: id, Module: module, Function: "run", Name: id}
}

func TestExecutor_RequireGateSkipsOnFailedPredecessor(t *testing.T) {
	pkgDoer := &scriptedDoer{module: "pkg", realResult: state.ReturnRecord{Status: state.StatusFail}}
	svcDoer := &scriptedDoer{module: "service", realResult: state.ReturnRecord{Status: state.StatusOK}}
	exec := newExecutor(map[string]*scriptedDoer{"pkg": pkgDoer, "service": svcDoer})

	a := chunk("a", "pkg")
	b := chunk("b", "service")
	b.Requires = []string{"a"}
	ls := &state.LowState{Chunks: []*state.Chunk{a, b}}

	rec, err := exec.Run(context.Background(), "run-1", ls, Options{})
	require.NoError(t, err)

	assert.Equal(t, state.StatusFail, rec.Results["a"].Status)
	assert.Equal(t, state.StatusSkipped, rec.Results["b"].Status)
	assert.Equal(t, 0, svcDoer.invokeCount)
}

func TestExecutor_OnchangesSkipsWithOKNotSkipped(t *testing.T) {
	confDoer := &scriptedDoer{module: "file", realResult: state.ReturnRecord{Status: state.StatusOK}} // no changes
	svcDoer := &scriptedDoer{module: "service", realResult: state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"x": 1}}}
	exec := newExecutor(map[string]*scriptedDoer{"file": confDoer, "service": svcDoer})

	conf := chunk("conf", "file")
	svc := chunk("svc", "service")
	svc.Onchanges = []string{"conf"}
	ls := &state.LowState{Chunks: []*state.Chunk{conf, svc}}

	rec, err := exec.Run(context.Background(), "run-2", ls, Options{})
	require.NoError(t, err)

	assert.Equal(t, state.StatusOK, rec.Results["svc"].Status)
	assert.Empty(t, rec.Results["svc"].Changes)
	assert.Equal(t, 0, svcDoer.invokeCount, "service.run must not actually invoke when onchanges gate is closed")
}

func TestExecutor_OnfailOnlyRunsWhenTargetFailed(t *testing.T) {
	buildDoer := &scriptedDoer{module: "cmd", realResult: state.ReturnRecord{Status: state.StatusFail}}
	notifyDoer := &scriptedDoer{module: "notify", realResult: state.ReturnRecord{Status: state.StatusOK}}
	exec := newExecutor(map[string]*scriptedDoer{"cmd": buildDoer, "notify": notifyDoer})

	build := chunk("build", "cmd")
	alert := chunk("alert", "notify")
	alert.Onfails = []string{"build"}
	ls := &state.LowState{Chunks: []*state.Chunk{build, alert}}

	rec, err := exec.Run(context.Background(), "run-3", ls, Options{})
	require.NoError(t, err)

	assert.Equal(t, state.StatusOK, rec.Results["alert"].Status)
	assert.Equal(t, 1, notifyDoer.invokeCount)
}

func TestExecutor_WatchTriggersReaction(t *testing.T) {
	confDoer := &scriptedDoer{module: "file", realResult: state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"content": "new"}}}
	svcDoer := &scriptedDoer{module: "service", realResult: state.ReturnRecord{Status: state.StatusOK}}
	exec := newExecutor(map[string]*scriptedDoer{"file": confDoer})
	reactionCalled := false
	reg := exec.Registry
	reg.Register(doer.Registration{Module: "service", Doer: svcDoer, Reaction: func(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error) {
		reactionCalled = true
		return state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"restarted": true}}, nil
	}})
	reg.SelectAll(nil)

	conf := chunk("conf", "file")
	svc := chunk("svc", "service")
	svc.Watches = []string{"conf"}
	ls := &state.LowState{Chunks: []*state.Chunk{conf, svc}}

	rec, err := exec.Run(context.Background(), "run-4", ls, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, svcDoer.invokeCount, "watch must run the ordinary operation, not only the reaction")
	assert.True(t, reactionCalled)
	assert.True(t, rec.Results["svc"].HasChanges())
}

func TestExecutor_PrereqSkipsBothWhenNoChangePredicted(t *testing.T) {
	siteDoer := &scriptedDoer{module: "file", testResult: state.ReturnRecord{Status: state.StatusOK}} // predicts no change
	gracefulDoer := &scriptedDoer{module: "cmd", realResult: state.ReturnRecord{Status: state.StatusOK}}
	exec := newExecutor(map[string]*scriptedDoer{"file": siteDoer, "cmd": gracefulDoer})

	site := chunk("site_code", "file")
	graceful := chunk("graceful", "cmd")
	graceful.Prereqs = []string{"site_code"}
	ls := &state.LowState{Chunks: []*state.Chunk{graceful, site}}

	rec, err := exec.Run(context.Background(), "run-5", ls, Options{})
	require.NoError(t, err)

	assert.Equal(t, state.StatusSkipped, rec.Results["graceful"].Status)
	assert.Equal(t, state.StatusSkipped, rec.Results["site_code"].Status)
	assert.Equal(t, 0, gracefulDoer.invokeCount)
	assert.Equal(t, 0, siteDoer.invokeCount)
}

func TestExecutor_PrereqRunsBothWhenChangePredicted(t *testing.T) {
	siteDoer := &scriptedDoer{module: "file", testResult: state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"x": 1}},
		realResult: state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"x": 1}}}
	gracefulDoer := &scriptedDoer{module: "cmd", realResult: state.ReturnRecord{Status: state.StatusOK}}
	exec := newExecutor(map[string]*scriptedDoer{"file": siteDoer, "cmd": gracefulDoer})

	site := chunk("site_code", "file")
	graceful := chunk("graceful", "cmd")
	graceful.Prereqs = []string{"site_code"}
	ls := &state.LowState{Chunks: []*state.Chunk{graceful, site}}

	rec, err := exec.Run(context.Background(), "run-6", ls, Options{})
	require.NoError(t, err)

	assert.Equal(t, state.StatusOK, rec.Results["graceful"].Status)
	assert.Equal(t, state.StatusOK, rec.Results["site_code"].Status)
	assert.Equal(t, 1, gracefulDoer.invokeCount)
	assert.Equal(t, 1, siteDoer.invokeCount)
}

func TestExecutor_FailhardAbortsRemainingChunks(t *testing.T) {
	failingDoer := &scriptedDoer{module: "cmd", realResult: state.ReturnRecord{Status: state.StatusFail}}
	laterDoer := &scriptedDoer{module: "pkg", realResult: state.ReturnRecord{Status: state.StatusOK}}
	exec := newExecutor(map[string]*scriptedDoer{"cmd": failingDoer, "pkg": laterDoer})

	a := chunk("a", "cmd")
	a.Failhard = true
	b := chunk("b", "pkg")
	ls := &state.LowState{Chunks: []*state.Chunk{a, b}}

	rec, err := exec.Run(context.Background(), "run-7", ls, Options{})
	require.NoError(t, err)

	assert.True(t, rec.Aborted)
	assert.Equal(t, state.StatusSkipped, rec.Results["b"].Status)
	assert.Equal(t, 0, laterDoer.invokeCount)
}

func TestExecutor_ListenFiresReactionOnceAfterRun(t *testing.T) {
	confDoer := &scriptedDoer{module: "file", realResult: state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"x": 1}}}
	svcDoer := &scriptedDoer{module: "service"}
	exec := newExecutor(map[string]*scriptedDoer{"file": confDoer})
	fired := 0
	exec.Registry.Register(doer.Registration{Module: "service", Doer: svcDoer, Reaction: func(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error) {
		fired++
		return state.ReturnRecord{Status: state.StatusOK}, nil
	}})
	exec.Registry.SelectAll(nil)

	conf := chunk("conf", "file")
	svc := chunk("svc", "service")
	conf.ListenedBy = []string{"svc"}
	ls := &state.LowState{Chunks: []*state.Chunk{conf, svc}}

	_, err := exec.Run(context.Background(), "run-8", ls, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}
