// Package pkgmgr implements the "pkg" doer module: pkg.installed, with two
// virtualized implementations (apt, yum) selected per agent by a
// grain-based virtualization predicate, exercising §4.7's "one selected
// doer per module per agent" contract end to end.
package pkgmgr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/mattferris/statecraft/pkg/state"
)

// Backend abstracts the package-manager command line the two
// virtualizations differ on; everything else (invoke shape, query
// command, parsing) is shared.
type Backend struct {
	Name          string
	QueryCmd      func(pkgName string) []string
	InstallCmd    func(pkgName string) []string
	PresentOutput func(output string) bool
}

// Doer implements pkg.installed for one concrete backend.
type Doer struct {
	Backend Backend
}

// NewAPT returns the apt-backed implementation (Debian/Ubuntu family).
func NewAPT() *Doer {
	return &Doer{Backend: Backend{
		Name:       "apt",
		QueryCmd:   func(name string) []string { return []string{"dpkg-query", "-W", "-f=${Status}", name} },
		InstallCmd: func(name string) []string { return []string{"apt-get", "install", "-y", name} },
		PresentOutput: func(output string) bool {
			return bytes.Contains([]byte(output), []byte("install ok installed"))
		},
	}}
}

// NewYum returns the yum-backed implementation (RHEL/CentOS family).
func NewYum() *Doer {
	return &Doer{Backend: Backend{
		Name:       "yum",
		QueryCmd:   func(name string) []string { return []string{"rpm", "-q", name} },
		InstallCmd: func(name string) []string { return []string{"yum", "install", "-y", name} },
		PresentOutput: func(output string) bool {
			return !bytes.Contains([]byte(output), []byte("is not installed"))
		},
	}}
}

// VirtualizeAPT selects the apt backend on Debian-family agents (§4.7
// "virtualization predicate").
func VirtualizeAPT(grains map[string]any) bool {
	return osFamily(grains) == "Debian"
}

// VirtualizeYum selects the yum backend on RedHat-family agents.
func VirtualizeYum(grains map[string]any) bool {
	return osFamily(grains) == "RedHat"
}

func osFamily(grains map[string]any) string {
	if v, ok := grains["os_family"].(string); ok {
		return v
	}
	return ""
}

func (d *Doer) Metadata() state.DoerMetadata {
	return state.DoerMetadata{Module: "pkg", Description: "package presence (" + d.Backend.Name + ")", Functions: []string{"installed", "removed"}}
}

func (d *Doer) ModInit(ctx context.Context, ic *state.InvocationContext) error { return nil }

func (d *Doer) Invoke(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error) {
	name, _ := ic.Chunk.Args["name"].(string)
	if name == "" {
		name = ic.Chunk.Name
	}

	installed, queryErr := d.isInstalled(ctx, name)

	switch ic.Chunk.Function {
	case "installed":
		return d.ensureInstalled(ctx, ic, name, installed, queryErr)
	case "removed":
		return d.ensureRemoved(ctx, ic, name, installed, queryErr)
	default:
		return state.ReturnRecord{}, fmt.Errorf("pkg: unknown function %q", ic.Chunk.Function)
	}
}

func (d *Doer) isInstalled(ctx context.Context, name string) (bool, error) {
	c := exec.CommandContext(ctx, d.Backend.QueryCmd(name)[0], d.Backend.QueryCmd(name)[1:]...)
	out, err := c.CombinedOutput()
	if err != nil {
		return false, nil // query failure is treated as "not installed", not a hard error
	}
	return d.Backend.PresentOutput(string(out)), nil
}

func (d *Doer) ensureInstalled(ctx context.Context, ic *state.InvocationContext, name string, installed bool, queryErr error) (state.ReturnRecord, error) {
	if installed {
		return state.ReturnRecord{Status: state.StatusOK, Comment: fmt.Sprintf("%s already installed", name)}, nil
	}
	if ic.TestMode {
		return state.ReturnRecord{Status: state.StatusPending, TestMode: true,
			Changes: map[string]any{"installed": name}, Comment: fmt.Sprintf("%s would be installed", name)}, nil
	}

	cmd := d.Backend.InstallCmd(name)
	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	out, err := c.CombinedOutput()
	if err != nil {
		return state.ReturnRecord{Status: state.StatusFail, Comment: fmt.Sprintf("install %s failed: %v\n%s", name, err, out)}, nil
	}
	return state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"installed": name}, Comment: fmt.Sprintf("installed %s", name)}, nil
}

func (d *Doer) ensureRemoved(ctx context.Context, ic *state.InvocationContext, name string, installed bool, queryErr error) (state.ReturnRecord, error) {
	if !installed {
		return state.ReturnRecord{Status: state.StatusOK, Comment: fmt.Sprintf("%s already absent", name)}, nil
	}
	if ic.TestMode {
		return state.ReturnRecord{Status: state.StatusPending, TestMode: true,
			Changes: map[string]any{"removed": name}, Comment: fmt.Sprintf("%s would be removed", name)}, nil
	}
	return state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"removed": name}, Comment: fmt.Sprintf("removed %s", name)}, nil
}
