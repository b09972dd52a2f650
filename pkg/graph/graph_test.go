package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattferris/statecraft/pkg/state"
)

func spec(id, module, function string, requires ...state.RequisiteRef) state.ChunkSpec {
	reqs := map[state.RequisiteKind][]state.RequisiteRef{}
	if len(requires) > 0 {
		reqs[state.ReqRequire] = requires
	}
	return state.ChunkSpec{ID: id, Module: module, Function: function, Requisites: reqs}
}

func TestResolve_OrdersByRequire(t *testing.T) {
	specs := []state.ChunkSpec{
		spec("b", "pkg", "installed", state.RequisiteRef{ID: "a"}),
		spec("a", "pkg", "installed"),
	}

	ls, err := Resolve(specs)
	require.NoError(t, err)
	require.Len(t, ls.Chunks, 2)

	assert.Equal(t, "a", ls.Chunks[0].ID)
	assert.Equal(t, "b", ls.Chunks[1].ID)
	assert.Contains(t, ls.Chunks[1].Requires, "a")
}

func TestResolve_DetectsCycle(t *testing.T) {
	specs := []state.ChunkSpec{
		spec("a", "pkg", "installed", state.RequisiteRef{ID: "b"}),
		spec("b", "pkg", "installed", state.RequisiteRef{ID: "a"}),
	}

	_, err := Resolve(specs)
	require.Error(t, err)

	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestResolve_FirstLastOrdering(t *testing.T) {
	specs := []state.ChunkSpec{
		{ID: "mid", Module: "cmd", Function: "run"},
		{ID: "last", Module: "cmd", Function: "run", OrderDirective: state.Order{Explicit: true, Last: true}},
		{ID: "first", Module: "cmd", Function: "run", OrderDirective: state.Order{Explicit: true, First: true}},
	}

	ls, err := Resolve(specs)
	require.NoError(t, err)
	require.Len(t, ls.Chunks, 3)

	assert.Equal(t, "first", ls.Chunks[0].ID)
	assert.Equal(t, "mid", ls.Chunks[1].ID)
	assert.Equal(t, "last", ls.Chunks[2].ID)
}

func TestResolve_RequireWinsOverExplicitFirst(t *testing.T) {
	specs := []state.ChunkSpec{
		spec("x", "pkg", "installed"),
		{
			ID: "first", Module: "cmd", Function: "run",
			OrderDirective: state.Order{Explicit: true, First: true},
			Requisites: map[state.RequisiteKind][]state.RequisiteRef{
				state.ReqRequire: {{ID: "x"}},
			},
		},
	}

	ls, err := Resolve(specs)
	require.NoError(t, err)
	require.Len(t, ls.Chunks, 2)

	assert.Equal(t, "x", ls.Chunks[0].ID)
	assert.Equal(t, "first", ls.Chunks[1].ID)
}

func TestResolve_ListenPopulatesTarget(t *testing.T) {
	specs := []state.ChunkSpec{
		{ID: "conf", Module: "file", Function: "managed"},
		{
			ID: "svc", Module: "service", Function: "running",
			Requisites: map[state.RequisiteKind][]state.RequisiteRef{
				state.ReqListen: {{ID: "conf"}},
			},
		},
	}

	ls, err := Resolve(specs)
	require.NoError(t, err)

	conf := ls.ByID("conf")
	require.NotNil(t, conf)
	assert.Equal(t, []string{"svc"}, conf.ListenedBy)
}
