// Package engine wires the core compiler/runtime packages (pkg/top,
// pkg/compiler, pkg/graph, pkg/runtime) into the orchestration loop a
// standalone daemon needs: load the top file, resolve it against an
// agent, compile+order the matched units, execute (or dry-run) the
// result, and record it. Grounded on the teacher's pkg/orchestra/orchestra.go
// run loop (load a plan, hand it to workers, collect a shared result),
// generalized here from "run an agentic coding plan" to "compile and run
// a highstate".
package engine

import (
	"context"
	"fmt"

	"github.com/mattferris/statecraft/internal/environment"
	"github.com/mattferris/statecraft/pkg/compiler"
	"github.com/mattferris/statecraft/pkg/doer"
	"github.com/mattferris/statecraft/pkg/eventbus"
	"github.com/mattferris/statecraft/pkg/graph"
	"github.com/mattferris/statecraft/pkg/match"
	"github.com/mattferris/statecraft/pkg/render"
	"github.com/mattferris/statecraft/pkg/runstate"
	"github.com/mattferris/statecraft/pkg/runtime"
	"github.com/mattferris/statecraft/pkg/state"
	"github.com/mattferris/statecraft/pkg/top"
)

// Options mirrors the §6 "Configuration recognized by the core" table.
type Options struct {
	AutoOrder                   bool
	ExcludeBeforeDuplicateCheck bool
	TopFileMergingStrategy      top.MergeStrategy
	DefaultTop                  string
	StateTopSaltenv             string
	FailhardGlobal              bool
	AggregateEnabled            bool
	AggregateModules            map[string]bool
	MaxConcurrency              int
	TopUnitName                 string // defaults to "top"
}

// Engine ties one agent environment's loader, doer registry, matcher
// registry, and run history together.
type Engine struct {
	Loader   *environment.Manager
	Registry *doer.Registry
	Matchers *match.Registry
	Guard    state.GuardRunner
	Events   runtime.EventEmitter
	Runs     *runstate.Store
	Grains   map[string]any
	Pillar   map[string]any
	Opts     Options
}

// New builds an Engine with sane defaults for the fields Options leaves
// at their zero value.
func New(loader *environment.Manager, registry *doer.Registry, grains, pillar map[string]any) *Engine {
	return &Engine{
		Loader:   loader,
		Registry: registry,
		Matchers: match.NewRegistry(nil),
		Guard:    doer.ExecGuardRunner{},
		Events:   (*eventbus.Bus)(nil),
		Runs:     runstate.New(0),
		Grains:   grains,
		Pillar:   pillar,
		Opts:     Options{AutoOrder: true, TopFileMergingStrategy: top.MergeAll, TopUnitName: "top"},
	}
}

func (e *Engine) agent(agentID string) match.Agent {
	return match.Agent{ID: agentID, Grains: e.Grains, Pillar: e.Pillar}
}

func (e *Engine) renderCtx(saltenv string) render.Context {
	return render.Context{Grains: e.Grains, Pillar: e.Pillar, Saltenv: saltenv}
}

func (e *Engine) topUnitName() string {
	if e.Opts.TopUnitName != "" {
		return e.Opts.TopUnitName
	}
	return "top"
}

// ShowTop loads and parses every environment's top file without
// resolving it against an agent (§6 "show_top").
func (e *Engine) ShowTop() (top.Data, error) {
	data := make(top.Data)
	for saltenv := range e.Loader.Environments() {
		unit, err := e.Loader.Load(e.topUnitName(), saltenv)
		if err != nil {
			continue // an environment with no top file contributes nothing
		}
		mapping, err := parseTopMapping(unit, e.renderCtx(saltenv))
		if err != nil {
			return nil, fmt.Errorf("engine: top file for %q: %w", saltenv, err)
		}
		for env, t := range mapping {
			data[env] = t
		}
	}
	return data, nil
}

// ResolveUnits resolves the top file against agentID and returns the
// per-environment list of matched source-unit names (§4.2).
func (e *Engine) ResolveUnits(agentID string) (map[string][]string, error) {
	data, err := e.ShowTop()
	if err != nil {
		return nil, err
	}
	opts := top.Options{
		Strategy:      e.Opts.TopFileMergingStrategy,
		DefaultTopEnv: e.Opts.DefaultTop,
		RequestedEnv:  e.Opts.StateTopSaltenv,
		CurrentEnv:    e.Opts.StateTopSaltenv,
		DefaultMatcher: "compound",
	}
	if opts.Strategy == "" {
		opts.Strategy = top.MergeAll
	}
	return top.Resolve(data, e.agent(agentID), e.Matchers, opts)
}

// ShowHighstate renders and merges the units selected for agentID/saltenv
// without compiling them to chunks (§6 "show_highstate").
func (e *Engine) ShowHighstate(agentID, saltenv string) ([]state.RenderedUnit, error) {
	units, err := e.ResolveUnits(agentID)
	if err != nil {
		return nil, err
	}
	return compiler.HighData(e.Loader, e.renderCtx(saltenv), saltenv, units[saltenv])
}

// ShowLowstate compiles and order-resolves the units selected for
// agentID/saltenv, returning the final chunk sequence without executing
// it (§6 "show_lowstate").
func (e *Engine) ShowLowstate(agentID, saltenv string) (*state.LowState, []state.Diagnostic, error) {
	units, err := e.ResolveUnits(agentID)
	if err != nil {
		return nil, nil, err
	}

	result, err := compiler.Compile(e.Loader, e.renderCtx(saltenv), saltenv, units[saltenv], compiler.Options{
		AutoOrder:                   e.Opts.AutoOrder,
		ExcludeBeforeDuplicateCheck: e.Opts.ExcludeBeforeDuplicateCheck,
	})
	if err != nil {
		return nil, nil, err
	}

	ls, err := graph.Resolve(result.Specs)
	if err != nil {
		return nil, result.Diagnostics, err
	}
	return ls, result.Diagnostics, nil
}

// Run compiles and executes (or dry-runs) the highstate for agentID in
// saltenv and records the result under a fresh run ID.
func (e *Engine) Run(ctx context.Context, agentID, saltenv string, testMode bool) (*state.RunRecord, error) {
	ls, diags, err := e.ShowLowstate(agentID, saltenv)
	if err != nil {
		return nil, err
	}

	e.Registry.SelectAll(e.Grains)

	exec := &runtime.Executor{
		Registry: e.Registry,
		Guard:    e.Guard,
		Events:   e.Events,
		Grains:   e.Grains,
		Pillar:   e.Pillar,
		Saltenv:  saltenv,
	}

	runID := runstate.NewRunID()
	record, err := exec.Run(ctx, runID, ls, runtime.Options{
		TestMode:         testMode,
		FailhardGlobal:   e.Opts.FailhardGlobal,
		MaxConcurrency:   e.Opts.MaxConcurrency,
		AggregateEnabled: e.Opts.AggregateEnabled,
		AggregateModules: e.Opts.AggregateModules,
	})
	if err != nil {
		return nil, err
	}
	record.Environment = saltenv
	record.Diagnostics = append(record.Diagnostics, diags...)

	e.Runs.Put(runID, runstate.Entry{Record: record, LowState: ls})
	return record, nil
}

func parseTopMapping(unit state.SourceUnit, ctx render.Context) (map[string]top.Top, error) {
	ctx.Unit = unit.Name
	rendered, err := render.RenderTemplate(unit.Raw, ctx)
	if err != nil {
		return nil, err
	}
	mapping, err := render.ParseData(rendered)
	if err != nil {
		return nil, err
	}

	out := make(map[string]top.Top, len(mapping))
	for env, body := range mapping {
		targets, ok := body.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("top: environment %q: expected a target mapping", env)
		}
		var t top.Top
		for target, unitsVal := range targets {
			var units []string
			switch u := unitsVal.(type) {
			case []any:
				for _, e := range u {
					if s, ok := e.(string); ok {
						units = append(units, s)
					}
				}
			case string:
				units = []string{u}
			}
			t = append(t, top.TargetEntry{Target: target, Units: units})
		}
		out[env] = t
	}
	return out, nil
}
