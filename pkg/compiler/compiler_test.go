package compiler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattferris/statecraft/pkg/render"
	"github.com/mattferris/statecraft/pkg/state"
)

// memLoader is a fixed in-memory unit map, enough to exercise include
// resolution and high->low compilation without touching a filesystem.
type memLoader map[string]string

func (m memLoader) Load(name, saltenv string) (state.SourceUnit, error) {
	raw, ok := m[name]
	if !ok {
		return state.SourceUnit{}, fmt.Errorf("no such unit: %s", name)
	}
	return state.SourceUnit{Name: name, Saltenv: saltenv, Raw: []byte(raw), RenderChain: []string{render.DataStage}}, nil
}

func TestCompile_SingleUnitShorthand(t *testing.T) {
	loader := memLoader{
		"webserver": `
nginx_pkg:
  pkg.installed:
    - name: nginx

nginx_service:
  service.running:
    - name: nginx
    - require:
      - pkg: nginx_pkg
`,
	}

	result, err := Compile(loader, render.Context{}, "base", []string{"webserver"}, Options{AutoOrder: true})
	require.NoError(t, err)
	require.Len(t, result.Specs, 2)

	var svc *state.ChunkSpec
	for i := range result.Specs {
		if result.Specs[i].ID == "nginx_service" {
			svc = &result.Specs[i]
		}
	}
	require.NotNil(t, svc)
	assert.Equal(t, "service", svc.Module)
	assert.Equal(t, "running", svc.Function)
	require.Contains(t, svc.Requisites, state.ReqRequire)
	assert.Equal(t, "nginx_pkg", svc.Requisites[state.ReqRequire][0].ID)
}

func TestCompile_LongFormFunctionBody(t *testing.T) {
	loader := memLoader{
		"pkgs": `
vim_pkg:
  pkg:
    - installed
    - name: vim
`,
	}

	result, err := Compile(loader, render.Context{}, "base", []string{"pkgs"}, Options{AutoOrder: true})
	require.NoError(t, err)
	require.Len(t, result.Specs, 1)
	assert.Equal(t, "pkg", result.Specs[0].Module)
	assert.Equal(t, "installed", result.Specs[0].Function)
	assert.Equal(t, "vim", result.Specs[0].Args["name"])
}

func TestCompile_IncludeAndExtend(t *testing.T) {
	loader := memLoader{
		"base_conf": `
motd:
  file.managed:
    - name: /etc/motd
    - content: hello
`,
		"override": `
include:
  - base_conf

extend:
  motd:
    file.managed:
      - content: overridden
`,
	}

	result, err := Compile(loader, render.Context{}, "base", []string{"override"}, Options{AutoOrder: true})
	require.NoError(t, err)
	require.Len(t, result.Specs, 1)
	assert.Equal(t, "overridden", result.Specs[0].Args["content"])
	assert.Equal(t, "/etc/motd", result.Specs[0].Args["name"])
}

func TestCompile_ExcludeByID(t *testing.T) {
	loader := memLoader{
		"base_conf": `
motd:
  file.managed:
    - name: /etc/motd
keep_me:
  file.managed:
    - name: /etc/keep
`,
		"trimmed": `
include:
  - base_conf

exclude:
  - id: motd
`,
	}

	result, err := Compile(loader, render.Context{}, "base", []string{"trimmed"}, Options{AutoOrder: true})
	require.NoError(t, err)
	require.Len(t, result.Specs, 1)
	assert.Equal(t, "keep_me", result.Specs[0].ID)
}

func TestCompile_RequireInRewritesToDirectRequire(t *testing.T) {
	loader := memLoader{
		"webserver": `
nginx_service:
  service.running:
    - name: nginx

nginx_pkg:
  pkg.installed:
    - name: nginx
    - require_in:
      - service: nginx_service
`,
	}

	result, err := Compile(loader, render.Context{}, "base", []string{"webserver"}, Options{AutoOrder: true})
	require.NoError(t, err)

	var svc *state.ChunkSpec
	for i := range result.Specs {
		if result.Specs[i].ID == "nginx_service" {
			svc = &result.Specs[i]
		}
	}
	require.NotNil(t, svc)
	require.Contains(t, svc.Requisites, state.ReqRequire)
	assert.Equal(t, "nginx_pkg", svc.Requisites[state.ReqRequire][0].ID)
	assert.NotContains(t, svc.Requisites, state.ReqRequireIn)
}

func TestCompile_CycleInIncludesIsFatal(t *testing.T) {
	loader := memLoader{
		"a": "include:\n  - b\n",
		"b": "include:\n  - a\n",
	}

	_, err := Compile(loader, render.Context{}, "base", []string{"a"}, Options{AutoOrder: true})
	require.Error(t, err)
}
