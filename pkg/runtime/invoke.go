package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/mattferris/statecraft/pkg/state"
)

// modInit calls the module's one-shot initializer at most once per run
// (§4.7 "mod-init").
func (e *Executor) modInit(ctx context.Context, r *run, c *state.Chunk) error {
	r.mu.Lock()
	done := r.modInitDone[c.Module]
	if done {
		r.mu.Unlock()
		return nil
	}
	r.modInitDone[c.Module] = true
	r.mu.Unlock()

	ic := e.invocationContext(r, c, false)
	return e.Registry.ModInit(ctx, c.Module, ic)
}

func (e *Executor) invocationContext(r *run, c *state.Chunk, testMode bool) *state.InvocationContext {
	return &state.InvocationContext{
		Chunk:    c,
		TestMode: testMode,
		Grains:   e.Grains,
		Pillar:   e.Pillar,
		Saltenv:  e.Saltenv,
		Prior:    r.byID,
	}
}

// evaluateGuards implements the pre-invocation half of §4.5's guard
// evaluation order: unless, then onlyif. check_cmd runs after the
// invocation, in checkCmdDowngrade.
func (r *run) evaluateGuards(ctx context.Context, c *state.Chunk) (run bool, skipComment string) {
	guard := r.exec.Guard
	if guard == nil {
		return true, ""
	}
	for _, cmd := range c.Unless {
		ok, _, err := guard.Run(ctx, cmd)
		if err == nil && ok {
			return false, fmt.Sprintf("unless: %q succeeded", cmd)
		}
	}
	if len(c.OnlyIf) > 0 {
		anyOK := false
		for _, cmd := range c.OnlyIf {
			ok, _, err := guard.Run(ctx, cmd)
			if err == nil && ok {
				anyOK = true
				break
			}
		}
		if !anyOK {
			return false, "onlyif: no condition succeeded"
		}
	}
	return true, ""
}

// checkCmdDowngrade runs check_cmd after a real invocation reported
// changes: if every command succeeds the result becomes ok/no-changes,
// and the first failing command turns it into fail (§4.5 "check_cmd").
func (r *run) checkCmdDowngrade(ctx context.Context, c *state.Chunk, rr state.ReturnRecord) state.ReturnRecord {
	if len(c.CheckCmd) == 0 || rr.Status != state.StatusOK || !rr.HasChanges() {
		return rr
	}
	guard := r.exec.Guard
	if guard == nil {
		return rr
	}
	for _, cmd := range c.CheckCmd {
		ok, _, err := guard.Run(ctx, cmd)
		if err != nil || !ok {
			rr.Status = state.StatusFail
			rr.Comment = fmt.Sprintf("check_cmd %q failed", cmd)
			return rr
		}
	}
	rr.Changes = nil
	rr.Comment = rr.Comment + " (confirmed by check_cmd)"
	return rr
}

// runOne evaluates guards then invokes the chunk's doer and applies the
// check_cmd downgrade (`use` arguments were already merged into the chunk
// by the graph resolver). If the invocation
// succeeds and any of c's watched predecessors reported changes, the
// module's reaction operation is invoked *in addition to* the ordinary
// one, and its result is merged into the return record (§4.6 "watch":
// "after its ordinary invocation succeeds ... invoke W's module's
// dedicated reaction operation ... and add its result to W's return
// record"); if the module declares no reaction, watch degrades to a
// plain require and only the normal operation's result stands.
func (r *run) runOne(ctx context.Context, c *state.Chunk, started time.Time, testMode bool) state.ReturnRecord {
	if ok, reason := r.evaluateGuards(ctx, c); !ok {
		return state.ReturnRecord{ID: c.ID, Status: state.StatusOK, Started: started, Comment: reason}
	}

	ic := r.exec.invocationContext(r, c, testMode)

	rr, err := r.exec.Registry.Invoke(ctx, ic)
	rr.ID = c.ID
	rr.Started = started
	if err != nil {
		rr.Status = state.StatusFail
		rr.Comment = err.Error()
		rr.Duration = time.Since(started)
		return rr
	}

	if rr.Status != state.StatusFail && r.watchTriggered(c) {
		reactionRR, handled, rerr := r.exec.Registry.Reaction(ctx, ic)
		if handled {
			rr = mergeReaction(rr, reactionRR, rerr)
		}
	}

	rr.Duration = time.Since(started)
	if !testMode {
		rr = r.checkCmdDowngrade(ctx, c, rr)
	}
	return rr
}

// mergeReaction folds a watch reaction's result into the chunk's
// ordinary return record: reaction changes are added to the existing
// Changes map, the reaction's comment is appended, and a failing
// reaction (or a reaction the registry couldn't invoke) fails the whole
// record (§4.6 "add its result to W's return record").
func mergeReaction(rr, reaction state.ReturnRecord, err error) state.ReturnRecord {
	if err != nil {
		rr.Status = state.StatusFail
		rr.Comment = appendComment(rr.Comment, fmt.Sprintf("reaction failed: %v", err))
		return rr
	}
	if reaction.Status == state.StatusFail {
		rr.Status = state.StatusFail
	}
	if len(reaction.Changes) > 0 {
		if rr.Changes == nil {
			rr.Changes = make(map[string]any, len(reaction.Changes))
		}
		for k, v := range reaction.Changes {
			rr.Changes[k] = v
		}
	}
	rr.Comment = appendComment(rr.Comment, reaction.Comment)
	return rr
}

func appendComment(base, add string) string {
	if add == "" {
		return base
	}
	if base == "" {
		return add
	}
	return base + "; " + add
}

// postInvoke fires fire_event and failhard handling after a chunk's own
// invocation result is recorded (§4.6). reload_modules is accepted and
// parsed but otherwise a no-op: the registry is re-consulted on every
// Invoke call, so there is no stale function table to refresh here.
func (r *run) postInvoke(ctx context.Context, c *state.Chunk, rr state.ReturnRecord) {
	if rr.Status == state.StatusFail {
		r.maybeFailhard(c)
		return
	}

	if rr.Status == state.StatusOK && rr.HasChanges() && c.FireEvent {
		if r.exec.Events != nil {
			tag := c.FireEventTag
			if tag == "" {
				tag = "statecraft/chunk/" + c.ID
			}
			r.exec.Events.Emit(tag, map[string]any{"id": c.ID, "changes": rr.Changes})
		}
	}
}

// watchTriggered reports whether any of c's watched predecessors
// reported changes (§4.6 "watch").
func (r *run) watchTriggered(c *state.Chunk) bool {
	for _, id := range c.Watches {
		if rr, ok := r.byID(id); ok && rr.Status == state.StatusOK && rr.HasChanges() {
			return true
		}
	}
	return false
}

func (r *run) maybeFailhard(c *state.Chunk) {
	if !c.Failhard && !r.opts.FailhardGlobal {
		return
	}
	r.mu.Lock()
	r.aborted = true
	r.mu.Unlock()
}
