package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsEmptyData(t *testing.T) {
	d, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Empty(t, d)
}

func TestLoad_EmptyPathYieldsEmptyData(t *testing.T) {
	d, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, d)
}

func TestLoad_DecodesNestedTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grains.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
os_family = "Debian"

[network]
interface = "eth0"
`), 0644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Debian", d["os_family"])
	network, ok := d["network"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "eth0", network["interface"])
}

func TestMerge_PatchWinsOnCollision(t *testing.T) {
	base := Data{"a": 1, "b": 2}
	patch := Data{"b": 3, "c": 4}
	out := Merge(base, patch)
	assert.Equal(t, Data{"a": 1, "b": 3, "c": 4}, out)
}
