// Package service implements the "service" doer module: service.running
// plus a dedicated restart reaction operation invoked by watch/listen
// (§4.6), exercising watch/listen end to end against file.managed.
package service

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/mattferris/statecraft/pkg/state"
)

// Doer implements service.running. It shells out to the host's service
// manager (systemctl) by convention; a real implementation would
// virtualize across init systems the way pkg virtualizes package
// managers, but that breadth is out of scope here (§1).
type Doer struct{}

func New() *Doer { return &Doer{} }

func (d *Doer) Metadata() state.DoerMetadata {
	return state.DoerMetadata{Module: "service", Description: "service run state", Functions: []string{"running", "dead"}}
}

func (d *Doer) ModInit(ctx context.Context, ic *state.InvocationContext) error { return nil }

func (d *Doer) Invoke(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error) {
	name, _ := ic.Chunk.Args["name"].(string)
	if name == "" {
		name = ic.Chunk.Name
	}

	switch ic.Chunk.Function {
	case "running":
		return d.ensureRunning(ctx, ic, name)
	case "dead":
		return d.ensureDead(ctx, ic, name)
	default:
		return state.ReturnRecord{}, fmt.Errorf("service: unknown function %q", ic.Chunk.Function)
	}
}

// Reaction implements the "restart" reaction operation invoked by
// watch/listen when a watched predecessor reports changes (§4.6).
func (d *Doer) Reaction(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error) {
	name, _ := ic.Chunk.Args["name"].(string)
	if name == "" {
		name = ic.Chunk.Name
	}
	if ic.TestMode {
		return state.ReturnRecord{Status: state.StatusPending, TestMode: true,
			Changes: map[string]any{"restarted": name}, Comment: fmt.Sprintf("%s would be restarted", name)}, nil
	}
	if err := run(ctx, "systemctl", "restart", name); err != nil {
		return state.ReturnRecord{Status: state.StatusFail, Comment: fmt.Sprintf("restart %s failed: %v", name, err)}, nil
	}
	return state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"restarted": name}, Comment: fmt.Sprintf("restarted %s", name)}, nil
}

func (d *Doer) ensureRunning(ctx context.Context, ic *state.InvocationContext, name string) (state.ReturnRecord, error) {
	active := d.isActive(ctx, name)
	if active {
		return state.ReturnRecord{Status: state.StatusOK, Comment: fmt.Sprintf("%s already running", name)}, nil
	}
	if ic.TestMode {
		return state.ReturnRecord{Status: state.StatusPending, TestMode: true,
			Changes: map[string]any{"started": name}, Comment: fmt.Sprintf("%s would be started", name)}, nil
	}
	if err := run(ctx, "systemctl", "start", name); err != nil {
		return state.ReturnRecord{Status: state.StatusFail, Comment: fmt.Sprintf("start %s failed: %v", name, err)}, nil
	}
	return state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"started": name}, Comment: fmt.Sprintf("started %s", name)}, nil
}

func (d *Doer) ensureDead(ctx context.Context, ic *state.InvocationContext, name string) (state.ReturnRecord, error) {
	active := d.isActive(ctx, name)
	if !active {
		return state.ReturnRecord{Status: state.StatusOK, Comment: fmt.Sprintf("%s already stopped", name)}, nil
	}
	if ic.TestMode {
		return state.ReturnRecord{Status: state.StatusPending, TestMode: true,
			Changes: map[string]any{"stopped": name}, Comment: fmt.Sprintf("%s would be stopped", name)}, nil
	}
	if err := run(ctx, "systemctl", "stop", name); err != nil {
		return state.ReturnRecord{Status: state.StatusFail, Comment: fmt.Sprintf("stop %s failed: %v", name, err)}, nil
	}
	return state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"stopped": name}, Comment: fmt.Sprintf("stopped %s", name)}, nil
}

func (d *Doer) isActive(ctx context.Context, name string) bool {
	c := exec.CommandContext(ctx, "systemctl", "is-active", "--quiet", name)
	return c.Run() == nil
}

func run(ctx context.Context, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out
	if err := c.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, out.String())
	}
	return nil
}
