package environment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUnit(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func TestManager_LoadResolvesDottedNameToFile(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "webserver/config.sls", "apache:\n  pkg.installed: []\n")

	mgr := NewManager(Roots{"base": {root}})
	unit, err := mgr.Load("webserver.config", "base")
	require.NoError(t, err)
	assert.Equal(t, "webserver.config", unit.Name)
	assert.Contains(t, string(unit.Raw), "apache")
}

func TestManager_LoadResolvesInitLeaf(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "webserver/init.sls", "apache:\n  pkg.installed: []\n")

	mgr := NewManager(Roots{"base": {root}})
	unit, err := mgr.Load("webserver", "base")
	require.NoError(t, err)
	assert.Equal(t, "webserver", unit.Name)
}

func TestManager_LoadUnknownSaltenv(t *testing.T) {
	mgr := NewManager(Roots{"base": {t.TempDir()}})
	_, err := mgr.Load("webserver", "dev")
	require.Error(t, err)
}

func TestManager_LoadMissingUnit(t *testing.T) {
	mgr := NewManager(Roots{"base": {t.TempDir()}})
	_, err := mgr.Load("nope", "base")
	require.Error(t, err)
}

func TestManager_LoadCachesByContentHash(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "a.sls", "a:\n  cmd.run:\n    - name: echo hi\n")

	mgr := NewManager(Roots{"base": {root}})
	first, err := mgr.Load("a", "base")
	require.NoError(t, err)

	second, err := mgr.Load("a", "base")
	require.NoError(t, err)
	assert.Equal(t, first.Raw, second.Raw)

	writeUnit(t, root, "a.sls", "a:\n  cmd.run:\n    - name: echo bye\n")
	mgr.Invalidate("base", "a")
	third, err := mgr.Load("a", "base")
	require.NoError(t, err)
	assert.Contains(t, string(third.Raw), "bye")
}

func TestDottedName_StripsRootSuffixAndInitLeaf(t *testing.T) {
	assert.Equal(t, "webserver.config", dottedName("/roots/base", "/roots/base/webserver/config.sls"))
	assert.Equal(t, "webserver", dottedName("/roots/base", "/roots/base/webserver/init.sls"))
}
