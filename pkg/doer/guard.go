package doer

import (
	"bytes"
	"context"
	"os/exec"
)

// ExecGuardRunner runs onlyif/unless/check_cmd commands through the host
// shell (§4.5 guard evaluation, §6 "executed via the doer interface").
// It is the one place in this package that genuinely shells out; every
// reference doer below should prefer this over constructing its own
// exec.Command for guard-shaped checks.
type ExecGuardRunner struct {
	Shell string // defaults to "/bin/sh" when empty
}

// Run executes cmd via `sh -c` and reports whether it exited zero. A
// command that cannot even be started (missing shell, permissions) is
// returned as an error, distinct from a non-zero exit (§7 "Guard error").
func (g ExecGuardRunner) Run(ctx context.Context, cmd string) (bool, string, error) {
	shell := g.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	c := exec.CommandContext(ctx, shell, "-c", cmd)
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out
	err := c.Run()
	if err == nil {
		return true, out.String(), nil
	}
	if _, isExit := err.(*exec.ExitError); isExit {
		return false, out.String(), nil
	}
	return false, out.String(), err
}
