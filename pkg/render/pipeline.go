package render

import (
	"fmt"

	"github.com/mattferris/statecraft/pkg/state"
)

// Render applies a unit's render chain in order (§4.1) and parses the
// final mapping into a RenderedUnit. Only "template" and "yaml" stages are
// known; an unrecognized stage name is a render error. The last stage in
// the chain must be a structured-data stage; anything else is a render
// error since the pipeline's contract is "final output must be a mapping".
func Render(unit state.SourceUnit, ctx Context) (state.RenderedUnit, error) {
	ctx.Unit = unit.Name
	ctx.Saltenv = unit.Saltenv

	chain := unit.RenderChain
	if len(chain) == 0 {
		chain = []string{TemplateStage, DataStage}
	}

	data := unit.Raw
	var mapping map[string]any
	for i, stage := range chain {
		switch stage {
		case TemplateStage:
			out, err := RenderTemplate(data, ctx)
			if err != nil {
				return state.RenderedUnit{}, err
			}
			data = out
		case DataStage:
			out, err := ParseData(data)
			if err != nil {
				return state.RenderedUnit{}, err
			}
			mapping = out
			if i != len(chain)-1 {
				return state.RenderedUnit{}, fmt.Errorf(
					"render: %q: data stage %q must be last in render chain", unit.Name, stage)
			}
		default:
			return state.RenderedUnit{}, fmt.Errorf(
				"render: %q: unknown render stage %q", unit.Name, stage)
		}
	}

	if mapping == nil {
		return state.RenderedUnit{}, fmt.Errorf(
			"render: %q: render chain produced no structured mapping", unit.Name)
	}

	return parseDeclarations(unit.Name, unit.Saltenv, mapping)
}

// parseDeclarations splits a unit's canonical mapping into Declarations
// (§3): include/exclude/extend are recognized by key name; everything
// else is an identifier declaration mapping to chunk specs built later by
// pkg/compiler.
func parseDeclarations(unitName, saltenv string, mapping map[string]any) (state.RenderedUnit, error) {
	ru := state.RenderedUnit{Unit: unitName, Saltenv: saltenv}

	extendSeen := false
	for key, val := range mapping {
		switch key {
		case "include":
			includes, err := toStringSlice(val)
			if err != nil {
				return state.RenderedUnit{}, fmt.Errorf("render: %q: include: %w", unitName, err)
			}
			ru.Declarations = append(ru.Declarations, state.Declaration{
				Kind:     state.DeclInclude,
				Includes: includes,
			})
			ru.DeclOrder = append(ru.DeclOrder, "include")

		case "exclude":
			entries, err := toExcludeEntries(val)
			if err != nil {
				return state.RenderedUnit{}, fmt.Errorf("render: %q: exclude: %w", unitName, err)
			}
			ru.Declarations = append(ru.Declarations, state.Declaration{
				Kind:     state.DeclExclude,
				Excludes: entries,
			})
			ru.DeclOrder = append(ru.DeclOrder, "exclude")

		case "extend":
			if extendSeen {
				return state.RenderedUnit{}, fmt.Errorf(
					"render: %q: structural error: more than one extend declaration", unitName)
			}
			extendSeen = true
			body, ok := val.(map[string]any)
			if !ok {
				return state.RenderedUnit{}, fmt.Errorf("render: %q: extend: expected a mapping", unitName)
			}
			for id, ebody := range body {
				eb, ok := ebody.(map[string]any)
				if !ok {
					return state.RenderedUnit{}, fmt.Errorf(
						"render: %q: extend.%s: expected a mapping", unitName, id)
				}
				perModule := make(map[string]map[string]any)
				for mk, mv := range eb {
					mm, ok := normalizeFunctionBody(mv)
					if !ok {
						continue
					}
					perModule[mk] = mm
				}
				ru.Declarations = append(ru.Declarations, state.Declaration{
					Kind:       state.DeclExtend,
					ExtendID:   id,
					ExtendBody: perModule,
				})
				ru.DeclOrder = append(ru.DeclOrder, "extend."+id)
			}

		default:
			body, ok := val.(map[string]any)
			if !ok {
				return state.RenderedUnit{}, fmt.Errorf(
					"render: %q: structural error: identifier %q must map to a mapping", unitName, key)
			}
			perModule := make(map[string]map[string]any)
			for mk, mv := range body {
				mm, ok := normalizeFunctionBody(mv)
				if !ok {
					continue
				}
				perModule[mk] = mm
			}
			ru.Declarations = append(ru.Declarations, state.Declaration{
				Kind:       state.DeclIdentifier,
				Identifier: key,
				Body:       perModule,
			})
			ru.DeclOrder = append(ru.DeclOrder, key)
		}
	}

	return ru, nil
}

// normalizeFunctionBody reduces a module's declared body to a single
// map[string]any carrying its function (under "__function__" if given in
// long form) and arguments, so pkg/compiler sees one shape regardless of
// whether the unit was authored as shorthand ("pkg.installed: {...}") or
// long form ("pkg:\n  - installed\n  - name: vim", §4.4). A plain mapping
// body (the shorthand case) passes through unchanged.
func normalizeFunctionBody(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		out := make(map[string]any, len(t))
		for _, elem := range t {
			switch e := elem.(type) {
			case string:
				out["__function__"] = e
			case map[string]any:
				for k, val := range e {
					out[k] = val
				}
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func toStringSlice(v any) ([]string, error) {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected a string, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{t}, nil
	default:
		return nil, fmt.Errorf("expected a string or list of strings, got %T", v)
	}
}

func toExcludeEntries(v any) ([]state.ExcludeEntry, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list")
	}
	out := make([]state.ExcludeEntry, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a mapping entry, got %T", e)
		}
		kind := "sls"
		if k, ok := m["kind"].(string); ok {
			kind = k
		}
		value, _ := m["value"].(string)
		if value == "" {
			// allow the {sls: name} / {id: name} shorthand
			if s, ok := m["sls"].(string); ok {
				kind, value = "sls", s
			} else if s, ok := m["id"].(string); ok {
				kind, value = "id", s
			}
		}
		out = append(out, state.ExcludeEntry{Kind: kind, Value: value})
	}
	return out, nil
}
