package compiler

import "github.com/mattferris/statecraft/pkg/state"

// rewriteInverseRequisites turns every "*_in" requisite declared on a
// chunk into the equivalent direct requisite on the chunk(s) it targets,
// before the order/graph resolver ever sees them (§4.4: "*_in requisites
// are rewritten into their direct counterparts on the targeted chunks
// before order resolution"). A_in on S targeting ref R means: the chunk
// matching R gains a direct requisite pointing back at S.
func rewriteInverseRequisites(specs []state.ChunkSpec) []state.Diagnostic {
	var diags []state.Diagnostic

	for i := range specs {
		src := &specs[i]
		for kind, refs := range src.Requisites {
			if !kind.IsInverse() {
				continue
			}
			direct := kind.Direct()
			for _, ref := range refs {
				matches := findMatches(specs, ref)
				if len(matches) == 0 {
					diags = append(diags, state.Diagnostic{
						Kind: state.DiagReference, Unit: src.Unit, ChunkID: src.ID,
						Message: "requisite " + string(kind) + ": no chunk matches target reference",
					})
					continue
				}
				target := &specs[matches[0]]
				target.Requisites[direct] = append(target.Requisites[direct], state.RequisiteRef{
					Module: src.Module,
					ID:     src.ID,
				})
			}
		}
	}

	// Drop the now-applied inverse entries so the graph resolver only
	// ever walks direct kinds.
	for i := range specs {
		for kind := range specs[i].Requisites {
			if kind.IsInverse() {
				delete(specs[i].Requisites, kind)
			}
		}
	}

	return diags
}

// findMatches returns the positions of chunks matching ref per §4.5's
// requisite target-matching rule: id equality or name equality, gated by
// module equality unless ref.Module is empty.
func findMatches(specs []state.ChunkSpec, ref state.RequisiteRef) []int {
	var out []int
	for i, s := range specs {
		if s.ID != ref.ID && s.Name != ref.ID {
			continue
		}
		if ref.Module != "" && s.Module != ref.Module {
			continue
		}
		out = append(out, i)
	}
	return out
}
