// Package graph implements the requisite graph build, acyclicity check,
// and deterministic evaluation-order resolution (C5, §4.5). It consumes
// the flat ChunkSpec list pkg/compiler produces and emits a pkg/state
// LowState whose Chunks slice is in final runtime order.
package graph

import (
	"sort"
	"strings"

	"github.com/mattferris/statecraft/pkg/state"
)

// CycleError is returned when the requisite graph contains a cycle
// (§4.5, §7 "cyclic ... requisites (fatal)").
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return "graph: cyclic requisites: " + strings.Join(e.Members, " -> ")
}

// Resolve builds the dependency graph over specs, validates acyclicity,
// and returns a LowState whose Chunks are in the deterministic total
// order described by §4.5: a single topological sort over the whole
// requisite graph, where among simultaneously-ready chunks the explicit
// order partition (first, default, last) is used as the tiebreak, then
// smallest definition order, then lexicographically by (module, id,
// function). A requisite edge always wins over explicit order: a chunk
// is never ready until its require/watch/prereq predecessors have run,
// regardless of which partition it or they belong to (§8 boundary case).
func Resolve(specs []state.ChunkSpec) (*state.LowState, error) {
	chunks, idIndex, nameIndex := projectChunks(specs)
	resolveReferences(specs, chunks, idIndex, nameIndex)

	if cyc := findCycle(chunks); cyc != nil {
		return nil, &CycleError{Members: cyc}
	}

	ordered := topoOrder(chunks)
	return &state.LowState{Chunks: ordered}, nil
}

// projectChunks converts ChunkSpecs into the low-data Chunk form (§4.4/§9
// "index-addressed table of chunks"), building id/name indices used for
// requisite-reference resolution.
func projectChunks(specs []state.ChunkSpec) ([]*state.Chunk, map[string][]int, map[string][]int) {
	chunks := make([]*state.Chunk, len(specs))
	idIndex := make(map[string][]int)
	nameIndex := make(map[string][]int)

	for i, s := range specs {
		c := &state.Chunk{
			ID:              s.ID,
			Module:          s.Module,
			Function:        s.Function,
			Name:            s.Name,
			Args:            s.Args,
			OrderDirective:  s.OrderDirective,
			Parallel:        s.Parallel,
			Failhard:        s.Failhard,
			FireEvent:       s.FireEvent,
			FireEventTag:    s.FireEventTag,
			ReloadModules:   s.ReloadModules,
			OnlyIf:          s.OnlyIf,
			Unless:          s.Unless,
			CheckCmd:        s.CheckCmd,
			Unit:            s.Unit,
			DefinitionOrder: s.DefinitionOrder,
		}
		chunks[i] = c
		idIndex[s.ID] = append(idIndex[s.ID], i)
		nameIndex[s.Name] = append(nameIndex[s.Name], i)
	}
	return chunks, idIndex, nameIndex
}

// findFirstMatch implements §4.5's requisite target-matching rule: a
// reference matches a chunk whose id equals the reference value OR whose
// name equals it, gated by module equality unless the reference's module
// is empty (any module accepted); first definition wins when multiple
// chunks match by name.
func findFirstMatch(chunks []*state.Chunk, idIndex, nameIndex map[string][]int, ref state.RequisiteRef) (int, bool) {
	for _, i := range idIndex[ref.ID] {
		if ref.Module == "" || chunks[i].Module == ref.Module {
			return i, true
		}
	}
	for _, i := range nameIndex[ref.ID] {
		if ref.Module == "" || chunks[i].Module == ref.Module {
			return i, true
		}
	}
	return 0, false
}

// resolveReferences walks each spec's direct-kind requisites (*_in was
// already rewritten to direct form by pkg/compiler) and fills in the
// corresponding resolved-ID slice on the projected Chunk.
func resolveReferences(specs []state.ChunkSpec, chunks []*state.Chunk, idIndex, nameIndex map[string][]int) {
	for i, s := range specs {
		c := chunks[i]
		for kind, refs := range s.Requisites {
			for _, ref := range refs {
				j, ok := findFirstMatch(chunks, idIndex, nameIndex, ref)
				if !ok {
					continue // unresolved requisite: a per-chunk diagnostic, not fatal (§7)
				}
				targetID := chunks[j].ID
				switch kind {
				case state.ReqRequire:
					c.Requires = appendUnique(c.Requires, targetID)
				case state.ReqWatch:
					c.Watches = appendUnique(c.Watches, targetID)
				case state.ReqPrereq:
					c.Prereqs = appendUnique(c.Prereqs, targetID)
				case state.ReqUse:
					c.Uses = appendUnique(c.Uses, targetID)
				case state.ReqOnfail:
					c.Onfails = appendUnique(c.Onfails, targetID)
				case state.ReqOnchanges:
					c.Onchanges = appendUnique(c.Onchanges, targetID)
				case state.ReqListen:
					chunks[j].ListenedBy = appendUnique(chunks[j].ListenedBy, c.ID)
				}
			}
		}
	}

	applyUseInheritance(specs, chunks, idIndex, nameIndex)
}

// applyUseInheritance implements `use`'s compile-time, non-transitive arg
// inheritance (§4.5, §9 "use inheritance cascades are non-transitive"):
// a chunk inherits its `use` target's Args (not requisites), and only
// ever looks at the direct target, never chasing the target's own `use`.
func applyUseInheritance(specs []state.ChunkSpec, chunks []*state.Chunk, idIndex, nameIndex map[string][]int) {
	for i := range chunks {
		for _, usedID := range chunks[i].Uses {
			uj, ok := idIndex[usedID]
			if !ok || len(uj) == 0 {
				continue
			}
			src := chunks[uj[0]]
			for k, v := range src.Args {
				if _, exists := chunks[i].Args[k]; !exists {
					if chunks[i].Args == nil {
						chunks[i].Args = make(map[string]any)
					}
					chunks[i].Args[k] = v
				}
			}
		}
	}
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}

// findCycle runs DFS coloring over the ordering-edge subgraph (require,
// watch, prereq) and returns the member IDs of the first cycle found, or
// nil if the graph is acyclic (§4.5, §8 testable property 3).
func findCycle(chunks []*state.Chunk) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(chunks))
	byID := make(map[string]*state.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		switch color[id] {
		case black:
			return false
		case gray:
			// Found a cycle: slice the stack back to the repeated node.
			start := 0
			for i, s := range stack {
				if s == id {
					start = i
					break
				}
			}
			cycle = append(append([]string{}, stack[start:]...), id)
			return true
		}
		color[id] = gray
		stack = append(stack, id)
		c := byID[id]
		if c != nil {
			for _, dep := range dependencies(c) {
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, c := range chunks {
		if color[c.ID] == white {
			if visit(c.ID) {
				return cycle
			}
		}
	}
	return nil
}

// dependencies returns the ordering-edge predecessors of a chunk: the
// chunks it must wait on (require, watch, prereq; §4.5).
func dependencies(c *state.Chunk) []string {
	out := make([]string, 0, len(c.Requires)+len(c.Watches)+len(c.Prereqs))
	out = append(out, c.Requires...)
	out = append(out, c.Watches...)
	out = append(out, c.Prereqs...)
	return out
}

// topoOrder produces the final deterministic total order (§4.5 steps 1-2)
// with a single Kahn's-algorithm pass over the *whole* requisite graph, so
// a require/watch/prereq edge that crosses an explicit-order partition
// boundary still gates readiness: explicit order only ranks chunks among
// those the graph says are simultaneously ready, it never lets an
// `order: first` chunk jump ahead of a chunk it requires (§8 boundary
// case: "order: first plus require on another chunk - the require
// wins"). Among ready chunks this picks, in priority order: explicit-first
// before ordinary before explicit-last; within the first/last groups,
// smallest explicit Value then lexicographic (module, id, function);
// within the ordinary group, smallest definition order then the same
// lexicographic tiebreak.
func topoOrder(chunks []*state.Chunk) []*state.Chunk {
	byID := make(map[string]*state.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	indegree := make(map[string]int, len(chunks))
	dependents := make(map[string][]string) // id -> ids that depend on it

	for _, c := range chunks {
		count := 0
		for _, dep := range dependencies(c) {
			if _, ok := byID[dep]; ok {
				count++
				dependents[dep] = append(dependents[dep], c.ID)
			}
		}
		indegree[c.ID] = count
	}

	ready := make([]*state.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if indegree[c.ID] == 0 {
			ready = append(ready, c)
		}
	}

	out := make([]*state.Chunk, 0, len(chunks))
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool {
			return readyLess(ready[i], ready[j])
		})
		next := ready[0]
		ready = ready[1:]
		out = append(out, next)

		for _, depID := range dependents[next.ID] {
			indegree[depID]--
			if indegree[depID] == 0 {
				ready = append(ready, byID[depID])
			}
		}
	}

	return out
}

// partitionRank orders the three explicit-order groups relative to each
// other (§4.4): explicit-first chunks before ordinary chunks before
// explicit-last chunks, whenever the dependency graph leaves a choice.
func partitionRank(c *state.Chunk) int {
	switch {
	case c.OrderDirective.Explicit && c.OrderDirective.First:
		return 0
	case c.OrderDirective.Explicit && c.OrderDirective.Last:
		return 2
	default:
		return 1
	}
}

// readyLess compares two chunks that are both currently ready (all their
// ordering-edge predecessors have already run), deciding which one the
// scheduler picks next.
func readyLess(a, b *state.Chunk) bool {
	ra, rb := partitionRank(a), partitionRank(b)
	if ra != rb {
		return ra < rb
	}
	if ra != 1 {
		if a.OrderDirective.Value != b.OrderDirective.Value {
			return a.OrderDirective.Value < b.OrderDirective.Value
		}
		return lessIdentity(a, b)
	}
	if a.DefinitionOrder != b.DefinitionOrder {
		return a.DefinitionOrder < b.DefinitionOrder
	}
	return lessIdentity(a, b)
}

func lessIdentity(a, b *state.Chunk) bool {
	if a.Module != b.Module {
		return a.Module < b.Module
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	return a.Function < b.Function
}
