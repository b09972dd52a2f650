// Package cmd implements the "cmd" doer module: cmd.run executes an
// external command and reports it as a change (commands are assumed to
// always mutate state, since the core has no way to know otherwise,
// mirroring how cmd.run is the one module whose idempotence is the
// author's responsibility).
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/mattferris/statecraft/pkg/state"
)

// Doer implements cmd.run.
type Doer struct {
	Shell string
}

// New returns the cmd doer.
func New() *Doer {
	return &Doer{Shell: "/bin/sh"}
}

func (d *Doer) Metadata() state.DoerMetadata {
	return state.DoerMetadata{Module: "cmd", Description: "run external commands", Functions: []string{"run"}}
}

func (d *Doer) ModInit(ctx context.Context, ic *state.InvocationContext) error { return nil }

func (d *Doer) Invoke(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error) {
	if ic.Chunk.Function != "run" {
		return state.ReturnRecord{}, fmt.Errorf("cmd: unknown function %q", ic.Chunk.Function)
	}

	cmdline, _ := ic.Chunk.Args["name"].(string)
	if cmdline == "" {
		cmdline = ic.Chunk.Name
	}

	if ic.TestMode {
		return state.ReturnRecord{
			Status:   state.StatusPending,
			Comment:  "would run: " + cmdline,
			TestMode: true,
			Changes:  map[string]any{"cmd": cmdline},
		}, nil
	}

	shell := d.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	c := exec.CommandContext(ctx, shell, "-c", cmdline)
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out
	err := c.Run()

	if err != nil {
		return state.ReturnRecord{
			Status:  state.StatusFail,
			Comment: fmt.Sprintf("command %q failed: %v\n%s", cmdline, err, out.String()),
		}, nil
	}

	return state.ReturnRecord{
		Status:  state.StatusOK,
		Comment: out.String(),
		Changes: map[string]any{"stdout": out.String()},
	}, nil
}
