package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Glob(t *testing.T) {
	r := NewRegistry(nil)
	agent := Agent{ID: "web01.example.com"}

	ok, err := r.Match("glob", "web*.example.com", agent)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Match("glob", "db*", agent)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry(nil)
	agent := Agent{ID: "web01"}

	ok, err := r.Match("list", "web01,web02,db01", agent)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Match("list", "web02,db01", agent)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_Grain(t *testing.T) {
	r := NewRegistry(nil)
	agent := Agent{ID: "web01", Grains: map[string]any{"os_family": "Debian"}}

	ok, err := r.Match("grain", "os_family:Debian", agent)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Match("grain", "os_family:RedHat", agent)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_PillarExact(t *testing.T) {
	r := NewRegistry(nil)
	agent := Agent{ID: "web01", Pillar: map[string]any{"role": "frontend"}}

	ok, err := r.Match("pillar_exact", "role:frontend", agent)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegistry_Compound(t *testing.T) {
	r := NewRegistry(nil)
	agent := Agent{ID: "web01", Grains: map[string]any{"os_family": "Debian"}}

	ok, err := r.Match("compound", "G@os_family:Debian and L@web01,web02", agent)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Match("compound", "G@os_family:RedHat or L@web01", agent)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Match("compound", "not L@web01", agent)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_Nodegroup(t *testing.T) {
	r := NewRegistry(map[string]string{"web": "L@web01,web02"})
	agent := Agent{ID: "web01"}

	ok, err := r.Match("nodegroup", "web", agent)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Match("bogus", "x", Agent{ID: "a"})
	require.Error(t, err)

	var unknown *UnknownKindError
	assert.ErrorAs(t, err, &unknown)
}
