package runtime

import (
	"github.com/mattferris/statecraft/pkg/state"
)

// applyAggregation runs each module's AggregateFunc (in chunk order)
// when aggregation is enabled for that module, marking the chunk IDs it
// consumed so evaluate() treats them as already-handled no-ops (§4.6
// "runtime aggregation").
func applyAggregation(r *run, chunks []*state.Chunk, opts Options) {
	if !opts.AggregateEnabled {
		return
	}
	for i, c := range chunks {
		if opts.AggregateModules != nil && !opts.AggregateModules[c.Module] {
			continue
		}
		if r.aggregated[c.ID] {
			continue
		}
		agg, ok := r.exec.Registry.Aggregate(c.Module)
		if !ok {
			continue
		}
		remaining := sameModuleAfter(chunks, i, c.Module)
		rewritten, consumed := agg(c, remaining, r.results)
		if rewritten != nil {
			*c = *rewritten
		}
		for _, id := range consumed {
			r.aggregated[id] = true
		}
	}
}

func sameModuleAfter(chunks []*state.Chunk, i int, module string) []*state.Chunk {
	var out []*state.Chunk
	for _, c := range chunks[i+1:] {
		if c.Module == module {
			out = append(out, c)
		}
	}
	return out
}
