// Package runtime implements the runtime executor (C6, §4.6) and the
// test-mode harness (C9, §4.9): it walks a resolved LowState in order,
// honors requisites, guards, watch/listen reactions, mod-init,
// aggregation, and failhard, dispatching parallel chunks through
// pkg/scheduler.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mattferris/statecraft/pkg/doer"
	"github.com/mattferris/statecraft/pkg/scheduler"
	"github.com/mattferris/statecraft/pkg/state"
)

// EventEmitter is the write-only external event bus collaborator (§6).
type EventEmitter interface {
	Emit(tag string, payload map[string]any)
}

// Options configures one run (§6 config options relevant to C6/C9/C8).
type Options struct {
	TestMode         bool
	FailhardGlobal   bool
	MaxConcurrency   int
	AggregateEnabled bool
	AggregateModules map[string]bool // nil = all modules, when AggregateEnabled
}

// Executor evaluates a compiled LowState against a concrete agent
// environment (§4.6, §4.7).
type Executor struct {
	Registry *doer.Registry
	Guard    state.GuardRunner
	Events   EventEmitter
	Grains   map[string]any
	Pillar   map[string]any
	Saltenv  string
}

// run carries the mutable state of a single Run call.
type run struct {
	ls      *state.LowState
	opts    Options
	exec    *Executor
	sched   *scheduler.Scheduler
	record  *state.RunRecord

	mu          sync.Mutex
	results     map[string]state.ReturnRecord
	modInitDone map[string]bool
	prereqMemo  map[string]bool
	aggregated  map[string]bool // chunk IDs consumed by aggregation: no-op when reached
	aborted     bool
}

// Run evaluates ls in order and returns the aggregated run record (§3,
// §6 "run(ordered_chunks, context, options) -> run_record").
func (e *Executor) Run(ctx context.Context, runID string, ls *state.LowState, opts Options) (*state.RunRecord, error) {
	r := &run{
		ls:          ls,
		opts:        opts,
		exec:        e,
		sched:       scheduler.New(opts.MaxConcurrency),
		results:     make(map[string]state.ReturnRecord),
		modInitDone: make(map[string]bool),
		prereqMemo:  make(map[string]bool),
		aggregated:  make(map[string]bool),
		record: &state.RunRecord{
			ID:       runID,
			TestMode: opts.TestMode,
			Started:  time.Now(),
			Results:  make(map[string]state.ReturnRecord),
		},
	}

	if e.Events != nil {
		e.Events.Emit("statecraft/run/start", map[string]any{"id": runID, "test": opts.TestMode})
	}

	for _, c := range ls.Chunks {
		r.sched.Track(c.ID)
	}

	prereqTargets := computePrereqTargets(ls.Chunks)
	applyAggregation(r, ls.Chunks, opts)

	for _, c := range ls.Chunks {
		if prereqTargets[c.ID] {
			// Deferred: executed out of normal order when the chunk that
			// prereqs it is reached (§4.6 "prereq").
			continue
		}

		r.mu.Lock()
		aborted := r.aborted
		r.mu.Unlock()
		if aborted {
			r.recordAborted(c)
			continue
		}

		if c.Parallel {
			cc := c
			r.sched.Go(func() {
				r.sched.WaitFor(dependencyIDs(cc))
				r.evaluate(ctx, cc)
				r.sched.MarkDone(cc.ID)
			})
			continue
		}

		r.sched.Barrier() // non-parallel chunks are barriers (§4.8)
		r.evaluate(ctx, c)
		r.sched.MarkDone(c.ID)
	}
	r.sched.Barrier()

	r.record.Finished = time.Now()
	r.record.Aborted = r.aborted
	for _, c := range ls.Chunks {
		r.record.Order = append(r.record.Order, c.ID)
		if rr, ok := r.results[c.ID]; ok {
			r.record.Results[c.ID] = rr
		}
	}

	runListenPhase(ctx, r)

	if e.Events != nil {
		e.Events.Emit("statecraft/run/stop", map[string]any{"id": runID, "aborted": r.record.Aborted})
	}

	return r.record, nil
}

func dependencyIDs(c *state.Chunk) []string {
	out := make([]string, 0, len(c.Requires)+len(c.Watches)+len(c.Prereqs))
	out = append(out, c.Requires...)
	out = append(out, c.Watches...)
	out = append(out, c.Prereqs...)
	return out
}

func computePrereqTargets(chunks []*state.Chunk) map[string]bool {
	out := make(map[string]bool)
	for _, c := range chunks {
		for _, p := range c.Prereqs {
			out[p] = true
		}
	}
	return out
}

// recordAborted marks a chunk as not-run because failhard cut the run
// short (§5 "Cancellation", §7 "Aborted").
func (r *run) recordAborted(c *state.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[c.ID] = state.ReturnRecord{
		ID:            c.ID,
		Status:        state.StatusSkipped,
		SkippedReason: "aborted: failhard cut the run short",
	}
	r.record.AbortedAt = c.ID
	r.sched.MarkDone(c.ID)
}

func (r *run) byID(id string) (state.ReturnRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rr, ok := r.results[id]
	return rr, ok
}

func (r *run) setResult(id string, rr state.ReturnRecord) {
	r.mu.Lock()
	r.results[id] = rr
	r.mu.Unlock()
}

// evaluate runs the full per-chunk pipeline described in §4.6: mod-init,
// requisite gating, onfail/onchanges gating, prereq, guards, invocation,
// watch reaction, reload_modules, fire_event, failhard.
func (r *run) evaluate(ctx context.Context, c *state.Chunk) {
	if r.aggregated[c.ID] {
		r.setResult(c.ID, state.ReturnRecord{ID: c.ID, Status: state.StatusOK, Started: time.Now(),
			Comment: "aggregated into an earlier chunk of the same module"})
		return
	}

	if err := r.exec.modInit(ctx, r, c); err != nil {
		r.setResult(c.ID, state.ReturnRecord{ID: c.ID, Status: state.StatusFail, Started: time.Now(),
			Comment: fmt.Sprintf("mod_init failed: %v", err)})
		r.maybeFailhard(c)
		return
	}

	if skipped, reason := r.requisiteGate(c); skipped {
		r.setResult(c.ID, state.ReturnRecord{ID: c.ID, Status: state.StatusSkipped, Started: time.Now(),
			SkippedReason: reason})
		return
	}

	if ok, rr := r.onfailGate(c); !ok {
		r.setResult(c.ID, rr)
		return
	}

	if ok, rr := r.onchangesGate(c); !ok {
		r.setResult(c.ID, rr)
		return
	}

	started := time.Now()

	if len(c.Prereqs) > 0 {
		r.runWithPrereq(ctx, c, started)
		return
	}

	rr := r.runOne(ctx, c, started, r.opts.TestMode)
	r.setResult(c.ID, rr)
	r.postInvoke(ctx, c, rr)
}

// requisiteGate implements §4.6's require/watch failure cascade.
func (r *run) requisiteGate(c *state.Chunk) (bool, string) {
	for _, depID := range append(append([]string{}, c.Requires...), c.Watches...) {
		dep, ok := r.byID(depID)
		if !ok {
			continue
		}
		if dep.Status == state.StatusFail {
			return true, fmt.Sprintf("require/watch: predecessor %q failed", depID)
		}
		if dep.Status == state.StatusSkipped {
			return true, fmt.Sprintf("require/watch: predecessor %q was skipped", depID)
		}
	}
	return false, ""
}

// onfailGate implements OR-across-targets onfail gating (§4.6, §8
// testable property 8).
func (r *run) onfailGate(c *state.Chunk) (bool, state.ReturnRecord) {
	if len(c.Onfails) == 0 {
		return true, state.ReturnRecord{}
	}
	for _, id := range c.Onfails {
		if dep, ok := r.byID(id); ok && dep.Status == state.StatusFail {
			return true, state.ReturnRecord{}
		}
	}
	return false, state.ReturnRecord{ID: c.ID, Status: state.StatusSkipped, Started: time.Now(),
		SkippedReason: "onfail: no target failed"}
}

// onchangesGate implements §4.6/§8 testable property 9: an ok/empty
// return (not Skipped) when no onchanges target changed.
func (r *run) onchangesGate(c *state.Chunk) (bool, state.ReturnRecord) {
	if len(c.Onchanges) == 0 {
		return true, state.ReturnRecord{}
	}
	for _, id := range c.Onchanges {
		if dep, ok := r.byID(id); ok && dep.Status == state.StatusOK && dep.HasChanges() {
			return true, state.ReturnRecord{}
		}
	}
	return false, state.ReturnRecord{ID: c.ID, Status: state.StatusOK, Started: time.Now(),
		Comment: "onchanges: no watched target reported changes"}
}
