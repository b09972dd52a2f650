package state

import "context"

// DoerMetadata identifies a doer module to the registry and diagnostics,
// mirroring the shape of the teacher's skill metadata (name/description/
// functions it exposes) rather than a single function.
type DoerMetadata struct {
	Module      string
	Description string
	Functions   []string
}

// InvocationContext carries everything a doer needs to execute a single
// chunk: its resolved args, the grains/pillar environment, test-mode flag,
// and an accessor for inspecting prior return records. It is analogous to the teacher's render/execution
// context objects threaded through Skill.Execute.
type InvocationContext struct {
	Chunk *Chunk

	// TestMode, when true, instructs the doer to predict rather than apply.
	TestMode bool

	Grains  map[string]any
	Pillar  map[string]any
	Saltenv string

	// Prior returns the return record of a chunk already evaluated in this
	// run. `use`/`use_in` argument inheritance does not go through it; the
	// graph resolver applies that before the run (§4.5).
	Prior func(id string) (ReturnRecord, bool)

	// Opts is Provider-specific configuration passed straight through
	// (e.g. command timeouts, filesystem roots).
	Opts map[string]any
}

// Doer is the invocation contract every module (cmd, file, pkg, service,
// ...) implements (§C7). ModInit is called at most once per run per
// module before any of its chunks execute (§4.7 "mod-init"); a nil
// ModInit is treated as a no-op.
type Doer interface {
	Metadata() DoerMetadata

	// ModInit performs one-time per-run setup for this module. It is
	// called before the module's first chunk invocation.
	ModInit(ctx context.Context, ic *InvocationContext) error

	// Invoke runs a single chunk and returns its return record. The
	// returned record's ID is set by the caller, not the doer.
	Invoke(ctx context.Context, ic *InvocationContext) (ReturnRecord, error)
}

// GuardRunner executes the shell-level guard commands (unless/onlyif/
// check_cmd) a chunk may declare (§4.5 guard evaluation order). It is
// separated from Doer so the runtime can evaluate guards uniformly across
// modules without each doer reimplementing command execution.
type GuardRunner interface {
	// Run executes cmd and reports whether it exited zero.
	Run(ctx context.Context, cmd string) (ok bool, output string, err error)
}
