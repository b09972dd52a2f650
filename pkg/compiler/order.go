package compiler

import (
	"sort"

	"github.com/mattferris/statecraft/pkg/state"
)

// applyLexicographicBaseline reassigns DefinitionOrder by (module, id,
// function) when state_auto_order is disabled (§4.4): the definition-order
// baseline the requisite/order resolver tiebreaks on then reflects
// sorted identity rather than include/document position.
func applyLexicographicBaseline(specs []state.ChunkSpec) {
	order := make([]int, len(specs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := specs[order[a]], specs[order[b]]
		if sa.Module != sb.Module {
			return sa.Module < sb.Module
		}
		if sa.ID != sb.ID {
			return sa.ID < sb.ID
		}
		return sa.Function < sb.Function
	})
	for rank, idx := range order {
		specs[idx].DefinitionOrder = rank
	}
}
