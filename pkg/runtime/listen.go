package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/mattferris/statecraft/pkg/state"
)

// runListenPhase implements §4.6's listen semantics: after the full run,
// for every chunk that reported changes, fire each subscriber's reaction
// at most once, in the order subscribers first appear across the run
// (listen never creates a graph ordering edge, so this always happens
// as a second pass over the already-resolved results).
func runListenPhase(ctx context.Context, r *run) {
	fired := make(map[string]bool)

	for _, target := range r.ls.Chunks {
		rr, ok := r.byID(target.ID)
		if !ok || rr.Status != state.StatusOK || !rr.HasChanges() {
			continue
		}
		for _, subscriberID := range target.ListenedBy {
			if fired[subscriberID] {
				continue
			}
			fired[subscriberID] = true
			fireListenReaction(ctx, r, subscriberID)
		}
	}
}

func fireListenReaction(ctx context.Context, r *run, subscriberID string) {
	subscriber := r.ls.ByID(subscriberID)
	if subscriber == nil {
		return
	}
	started := time.Now()
	ic := r.exec.invocationContext(r, subscriber, r.opts.TestMode)
	rr, handled, err := r.exec.Registry.Reaction(ctx, ic)
	if !handled {
		return // no reaction declared: listen is a no-op beyond normal ordering
	}
	rr.ID = subscriberID + "_|-listen"
	rr.Started = started
	rr.Duration = time.Since(started)
	if err != nil {
		rr.Status = state.StatusFail
		rr.Comment = fmt.Sprintf("listen reaction failed: %v", err)
	}
	r.record.Order = append(r.record.Order, rr.ID)
	r.record.Results[rr.ID] = rr
}
