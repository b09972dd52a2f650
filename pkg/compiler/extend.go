package compiler

import (
	"fmt"

	"github.com/mattferris/statecraft/pkg/state"
)

// applyExtends implements §4.4's "extend is applied last": requisite-kind
// keys append (originals + extend's additions, preserving order);
// every other supplied key replaces the target's value; an extend whose
// target id is not present in the compiled specs is a diagnostic, not a
// fatal error (§4.3, §7 "Reference error").
func applyExtends(specs []state.ChunkSpec, extends []extendEntry) ([]state.ChunkSpec, []state.Diagnostic) {
	if len(extends) == 0 {
		return specs, nil
	}

	index := make(map[string][]int) // id -> positions in specs
	for i, s := range specs {
		index[s.ID] = append(index[s.ID], i)
	}

	var diags []state.Diagnostic

	for _, e := range extends {
		positions, ok := index[e.decl.ExtendID]
		if !ok {
			diags = append(diags, state.Diagnostic{
				Kind:    state.DiagReference,
				Unit:    e.unit,
				ChunkID: e.decl.ExtendID,
				Message: fmt.Sprintf("extend target %q is not an included identifier; dropped", e.decl.ExtendID),
			})
			continue
		}

		for key, body := range e.decl.ExtendBody {
			module, function, args, ok := extractFunction(key, cloneArgs(body))
			if !ok {
				diags = append(diags, state.Diagnostic{
					Kind: state.DiagStructural, Unit: e.unit, ChunkID: e.decl.ExtendID,
					Message: fmt.Sprintf("extend: module key %q: could not resolve exactly one function", key),
				})
				continue
			}

			matched := false
			for _, pos := range positions {
				target := &specs[pos]
				if target.Module != module || target.Function != function {
					continue
				}
				matched = true
				mergeExtendInto(target, args)
			}
			if !matched {
				diags = append(diags, state.Diagnostic{
					Kind: state.DiagReference, Unit: e.unit, ChunkID: e.decl.ExtendID,
					Message: fmt.Sprintf("extend: no chunk %s.%s on identifier %q; dropped", module, function, e.decl.ExtendID),
				})
			}
		}
	}

	return specs, diags
}

func cloneArgs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mergeExtendInto applies one module.function extend body onto an
// existing ChunkSpec in place, per §4.4/§8 testable property 6.
func mergeExtendInto(target *state.ChunkSpec, args map[string]any) {
	for key, val := range args {
		switch {
		case key == "name":
			if s, ok := val.(string); ok {
				target.Name = s
			}
		case key == "names":
			// extend does not re-expand names:; ignored if present
		case key == "order":
			target.OrderDirective = parseOrder(val)
		case key == "parallel":
			target.Parallel, _ = val.(bool)
		case key == "failhard":
			target.Failhard, _ = val.(bool)
		case key == "fire_event":
			switch v := val.(type) {
			case bool:
				target.FireEvent = v
			case string:
				target.FireEvent = true
				target.FireEventTag = v
			}
		case key == "reload_modules":
			target.ReloadModules, _ = val.(bool)
		case key == "onlyif":
			target.OnlyIf = toStrings(val)
		case key == "unless":
			target.Unless = toStrings(val)
		case key == "check_cmd":
			target.CheckCmd = toStrings(val)
		case isRequisiteKeyword(key):
			kind := state.RequisiteKind(key)
			target.Requisites[kind] = append(target.Requisites[kind], toRefs(val)...)
		default:
			target.Args[key] = val
		}
	}
}
