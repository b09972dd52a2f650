// Package doer implements the invocation interface registry (C7, §6
// "Doer registry") plus the reference doer modules (cmd, file, pkg,
// service) that exercise the contract end to end. Real package-manager
// and service-manager integrations are explicitly out of scope (§1); the
// implementations here are narrated proofs of the contract, not
// production system-effecting code.
package doer

import (
	"context"
	"fmt"
	"sync"

	"github.com/mattferris/statecraft/pkg/state"
)

// AggregateFunc batches subsequent equivalent chunks' arguments into the
// current chunk (§4.6 "runtime aggregation"). It receives the current
// chunk, the remaining chunks of the same module, and the return records
// accumulated so far, and returns the (possibly rewritten) current chunk
// plus the set of chunk IDs it consumed.
type AggregateFunc func(current *state.Chunk, remaining []*state.Chunk, soFar map[string]state.ReturnRecord) (*state.Chunk, []string)

// VirtualizeFunc selects, for a module name, which concrete Doer
// implementation should be installed for this agent, based on grains
// (§4.7 "virtualization predicate").
type VirtualizeFunc func(grains map[string]any) bool

// Registration is one candidate implementation for a module name; when a
// module has more than one Registration, exactly one is selected per
// agent by evaluating each Virtualize predicate in registration order
// (§9 "Dynamic dispatch / virtualization").
type Registration struct {
	Module    string
	Doer      state.Doer
	Virtualize VirtualizeFunc
	Reaction  func(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error)
	Aggregate AggregateFunc
}

// Registry is the per-run function table (§9 "Global mutable state":
// this is the explicit per-run context field that replaces a process-wide
// singleton; ReloadModules atomically replaces it).
type Registry struct {
	mu            sync.RWMutex
	candidates    map[string][]Registration
	selected      map[string]Registration
}

// NewRegistry builds an empty registry. Use Register to add candidate
// implementations, then Select (or SelectAll) to run the virtualization
// pass for a concrete agent (§6 "Doer registry").
func NewRegistry() *Registry {
	return &Registry{
		candidates: make(map[string][]Registration),
		selected:   make(map[string]Registration),
	}
}

// Register adds a candidate implementation for a module name.
func (r *Registry) Register(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates[reg.Module] = append(r.candidates[reg.Module], reg)
}

// SelectAll runs the virtualization predicate for every registered module
// against grains and installs exactly one implementation per module name
// (§4.7, §9: deterministic given grains, first matching candidate wins).
func (r *Registry) SelectAll(grains map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for module, candidates := range r.candidates {
		for _, c := range candidates {
			if c.Virtualize == nil || c.Virtualize(grains) {
				r.selected[module] = c
				break
			}
		}
	}
}

// Lookup returns the selected Doer for a module, or false if none is
// installed (an unresolvable (module, function) reference, §7).
func (r *Registry) Lookup(module string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.selected[module]
	return reg, ok
}

// Invoke dispatches a single chunk invocation through its module's
// selected Doer (§4.7). The caller (pkg/runtime) is responsible for
// mod-init, guard evaluation, and gating; this is the raw doer call.
func (r *Registry) Invoke(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error) {
	reg, ok := r.Lookup(ic.Chunk.Module)
	if !ok {
		return state.ReturnRecord{}, fmt.Errorf("doer: no implementation installed for module %q", ic.Chunk.Module)
	}
	return reg.Doer.Invoke(ctx, ic)
}

// Reaction invokes module's reaction operation for a watch/listen trigger
// (§4.6). ok is false if the module declares none (watch degrades to
// require, §4.6 "watch degradation").
func (r *Registry) Reaction(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, bool, error) {
	reg, ok := r.Lookup(ic.Chunk.Module)
	if !ok || reg.Reaction == nil {
		return state.ReturnRecord{}, false, nil
	}
	rr, err := reg.Reaction(ctx, ic)
	return rr, true, err
}

// Aggregate returns the module's aggregate function, if any (§4.6).
func (r *Registry) Aggregate(module string) (AggregateFunc, bool) {
	reg, ok := r.Lookup(module)
	if !ok || reg.Aggregate == nil {
		return nil, false
	}
	return reg.Aggregate, true
}

// ModInit runs the module's one-shot initializer, if declared (§4.7).
func (r *Registry) ModInit(ctx context.Context, module string, ic *state.InvocationContext) error {
	reg, ok := r.Lookup(module)
	if !ok || reg.Doer == nil {
		return nil
	}
	return reg.Doer.ModInit(ctx, ic)
}
