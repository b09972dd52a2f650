package doer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattferris/statecraft/pkg/state"
)

type fakeDoer struct {
	meta state.DoerMetadata
	ret  state.ReturnRecord
}

func (f *fakeDoer) Metadata() state.DoerMetadata { return f.meta }
func (f *fakeDoer) ModInit(ctx context.Context, ic *state.InvocationContext) error { return nil }
func (f *fakeDoer) Invoke(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error) {
	return f.ret, nil
}

func TestRegistry_SelectAllPicksFirstMatchingVirtualization(t *testing.T) {
	r := NewRegistry()
	apt := &fakeDoer{meta: state.DoerMetadata{Module: "pkg"}, ret: state.ReturnRecord{Comment: "apt"}}
	yum := &fakeDoer{meta: state.DoerMetadata{Module: "pkg"}, ret: state.ReturnRecord{Comment: "yum"}}

	r.Register(Registration{Module: "pkg", Doer: apt, Virtualize: func(g map[string]any) bool { return g["os_family"] == "Debian" }})
	r.Register(Registration{Module: "pkg", Doer: yum, Virtualize: func(g map[string]any) bool { return g["os_family"] == "RedHat" }})

	r.SelectAll(map[string]any{"os_family": "RedHat"})

	reg, ok := r.Lookup("pkg")
	require.True(t, ok)
	rr, err := reg.Doer.Invoke(context.Background(), &state.InvocationContext{})
	require.NoError(t, err)
	assert.Equal(t, "yum", rr.Comment)
}

func TestRegistry_InvokeUnknownModule(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), &state.InvocationContext{Chunk: &state.Chunk{Module: "nope"}})
	require.Error(t, err)
}

func TestRegistry_ReactionReportsUnhandledWhenNoneDeclared(t *testing.T) {
	r := NewRegistry()
	r.Register(Registration{Module: "cmd", Doer: &fakeDoer{meta: state.DoerMetadata{Module: "cmd"}}})
	r.SelectAll(nil)

	_, handled, err := r.Reaction(context.Background(), &state.InvocationContext{Chunk: &state.Chunk{Module: "cmd"}})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestRegistry_ReactionInvokesDeclaredReaction(t *testing.T) {
	r := NewRegistry()
	called := false
	reaction := func(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error) {
		called = true
		return state.ReturnRecord{Status: state.StatusOK}, nil
	}
	r.Register(Registration{Module: "service", Doer: &fakeDoer{meta: state.DoerMetadata{Module: "service"}}, Reaction: reaction})
	r.SelectAll(nil)

	rr, handled, err := r.Reaction(context.Background(), &state.InvocationContext{Chunk: &state.Chunk{Module: "service"}})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, called)
	assert.Equal(t, state.StatusOK, rr.Status)
}
