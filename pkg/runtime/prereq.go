package runtime

import (
	"context"
	"time"

	"github.com/mattferris/statecraft/pkg/state"
)

// runWithPrereq implements §4.6's prereq dance: each pre-required chunk
// is evaluated in test mode first to predict whether it would change
// anything. If any does, this chunk runs for real now and its
// pre-required chunks run for real immediately after, out of their
// normal graph position (they were deferred at computePrereqTargets).
// If none predict changes, both this chunk and its pre-required chunks
// are skipped and the deferred chunks never run.
func (r *run) runWithPrereq(ctx context.Context, c *state.Chunk, started time.Time) {
	anyChange := false
	for _, id := range c.Prereqs {
		if r.predictDryRun(ctx, id) {
			anyChange = true
		}
	}

	if !anyChange {
		r.setResult(c.ID, state.ReturnRecord{ID: c.ID, Status: state.StatusSkipped, Started: started,
			SkippedReason: "prereq: no pre-required chunk predicted changes"})
		for _, id := range c.Prereqs {
			r.setResult(id, state.ReturnRecord{ID: id, Status: state.StatusSkipped, Started: started,
				SkippedReason: "prereq: pre-required chunk was not needed"})
			r.sched.MarkDone(id) // the deferred chunk's slot was skipped; release anything waiting on it
		}
		return
	}

	rr := r.runOne(ctx, c, started, r.opts.TestMode)
	r.setResult(c.ID, rr)
	r.postInvoke(ctx, c, rr)

	for _, id := range c.Prereqs {
		target := r.ls.ByID(id)
		if target == nil {
			continue
		}
		_ = r.exec.modInit(ctx, r, target)
		tStarted := time.Now()
		trr := r.runOne(ctx, target, tStarted, r.opts.TestMode)
		r.setResult(target.ID, trr)
		r.postInvoke(ctx, target, trr)
		r.sched.MarkDone(id)
	}
}

// predictDryRun evaluates a pre-required chunk's doer in test mode to
// predict whether it would report changes, memoized per chunk ID so a
// chunk that prereqs the same target twice (or transitively, through
// its own prereqs) only pays for one dry-run evaluation (§4.6, Open
// Question: prereq dry-run is treated as transitive through the
// target's own guards and doer prediction).
func (r *run) predictDryRun(ctx context.Context, id string) bool {
	r.mu.Lock()
	if v, ok := r.prereqMemo[id]; ok {
		r.mu.Unlock()
		return v
	}
	r.mu.Unlock()

	target := r.ls.ByID(id)
	predicted := false
	if target != nil {
		_ = r.exec.modInit(ctx, r, target)
		rr := r.runOne(ctx, target, time.Now(), true)
		predicted = rr.HasChanges()
	}

	r.mu.Lock()
	r.prereqMemo[id] = predicted
	r.mu.Unlock()
	return predicted
}
