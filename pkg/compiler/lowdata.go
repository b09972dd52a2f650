package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattferris/statecraft/pkg/state"
)

type highEntry struct {
	unit     string
	order    int
	decl     state.Declaration
}

type extendEntry struct {
	unit  string
	order int
	decl  state.Declaration
}

// mergeHighData implements the identifier-merge half of §4.3/§4.4:
// first-definition-wins across all rendered units, dotted identifiers
// rejected, at most one extend per unit (already enforced by the
// renderer), and §4.3's documented exclude-after-duplicate-check
// ordering (reversible via Options.ExcludeBeforeDuplicateCheck).
func mergeHighData(units []state.RenderedUnit, opts Options) (map[string]highEntry, []extendEntry, []state.Diagnostic, error) {
	var diags []state.Diagnostic

	if opts.ExcludeBeforeDuplicateCheck {
		kept, excludedIDs := applyExcludes(units)
		return mergeIdentifiers(kept, excludedIDs, diags)
	}

	high, extends, diags, err := mergeIdentifiers(units, nil, diags)
	if err != nil {
		return nil, nil, nil, err
	}
	_, excludedIDs := applyExcludes(units)
	excludedUnitSet := make(map[string]bool)
	for _, u := range units {
		for _, decl := range u.Declarations {
			if decl.Kind != state.DeclExclude {
				continue
			}
			for _, e := range decl.Excludes {
				if e.Kind == "sls" {
					excludedUnitSet[e.Value] = true
				}
			}
		}
	}
	for id, he := range high {
		if excludedIDs[id] || excludedUnitSet[he.unit] {
			delete(high, id)
		}
	}
	var filteredExtends []extendEntry
	for _, e := range extends {
		if excludedUnitSet[e.unit] {
			continue
		}
		filteredExtends = append(filteredExtends, e)
	}
	return high, filteredExtends, diags, nil
}

func mergeIdentifiers(units []state.RenderedUnit, excludedIDs map[string]bool, diags []state.Diagnostic) (map[string]highEntry, []extendEntry, []state.Diagnostic, error) {
	high := make(map[string]highEntry)
	var extends []extendEntry
	counter := 0

	for _, u := range units {
		for _, decl := range u.Declarations {
			switch decl.Kind {
			case state.DeclIdentifier:
				if excludedIDs[decl.Identifier] {
					continue
				}
				if strings.Contains(decl.Identifier, ".") {
					diags = append(diags, state.Diagnostic{
						Kind:    state.DiagStructural,
						Unit:    u.Unit,
						ChunkID: decl.Identifier,
						Message: "identifier contains forbidden '.' character; dropped",
					})
					continue
				}
				if existing, ok := high[decl.Identifier]; ok {
					diags = append(diags, state.Diagnostic{
						Kind:    state.DiagStructural,
						Unit:    u.Unit,
						ChunkID: decl.Identifier,
						Message: fmt.Sprintf("duplicate identifier %q (first defined in %q); dropped", decl.Identifier, existing.unit),
					})
					continue
				}
				high[decl.Identifier] = highEntry{unit: u.Unit, order: counter, decl: decl}
				counter++

			case state.DeclExtend:
				extends = append(extends, extendEntry{unit: u.Unit, order: counter, decl: decl})
				counter++
			}
		}
	}

	return high, extends, diags, nil
}

// compileLowData implements C4: each high-data identifier is normalized
// to one or more ChunkSpecs (names: expansion, module.function shorthand
// vs long form, extend application, definition-order assignment).
func compileLowData(high map[string]highEntry, opts Options) ([]state.ChunkSpec, []state.Diagnostic) {
	ids := make([]string, 0, len(high))
	for id := range high {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return high[ids[i]].order < high[ids[j]].order })

	var specs []state.ChunkSpec
	var diags []state.Diagnostic
	defOrder := 0

	for _, id := range ids {
		entry := high[id]
		expanded, d := expandIdentifier(id, entry.decl, entry.unit, &defOrder)
		specs = append(specs, expanded...)
		diags = append(diags, d...)
	}

	return specs, diags
}

// expandIdentifier turns one identifier's Body (module -> raw args
// mapping) into one ChunkSpec per (module, function) entry, expanding
// names: into siblings. defOrder is threaded through so multi-function
// identifiers and names: expansion each get their own increasing counter
// value (§4.4 "definition order").
func expandIdentifier(id string, decl state.Declaration, unit string, defOrder *int) ([]state.ChunkSpec, []state.Diagnostic) {
	var specs []state.ChunkSpec
	var diags []state.Diagnostic

	for key, body := range decl.Body {
		module, function, args, ok := extractFunction(key, body)
		if !ok {
			diags = append(diags, state.Diagnostic{
				Kind: state.DiagStructural, Unit: unit, ChunkID: id,
				Message: fmt.Sprintf("module key %q: could not resolve exactly one function", key),
			})
			continue
		}

		base := state.ChunkSpec{
			ID:       id,
			Module:   module,
			Function: function,
			Name:     id,
			Unit:     unit,
		}
		base.Requisites = make(map[state.RequisiteKind][]state.RequisiteRef)
		base.Args = make(map[string]any)

		applyKeywords(&base, args)

		if namesVal, ok := args["names"]; ok {
			for _, spec := range expandNames(base, namesVal) {
				spec.DefinitionOrder = *defOrder
				*defOrder++
				specs = append(specs, spec)
			}
			continue
		}

		base.DefinitionOrder = *defOrder
		*defOrder++
		specs = append(specs, base)
	}

	return specs, diags
}

// extractFunction resolves a single decl.Body entry to (module, function,
// args): either the shorthand key "module.function" mapping straight to
// args, or a bare module key whose body carries "__function__" from the
// long ("module:" + list) form normalized by pkg/render (§4.4). Both must
// yield the same chunk.
func extractFunction(key string, body map[string]any) (string, string, map[string]any, bool) {
	if fn, ok := body["__function__"].(string); ok {
		delete(body, "__function__")
		return key, fn, body, true
	}

	if idx := strings.IndexByte(key, '.'); idx >= 0 {
		return key[:idx], key[idx+1:], body, true
	}

	return "", "", nil, false
}

var keywordKeys = map[string]bool{
	"require": true, "require_in": true, "watch": true, "watch_in": true,
	"prereq": true, "prereq_in": true, "use": true, "use_in": true,
	"onfail": true, "onfail_in": true, "onchanges": true, "onchanges_in": true,
	"listen": true, "listen_in": true,
	"order": true, "parallel": true, "failhard": true, "fire_event": true,
	"reload_modules": true, "onlyif": true, "unless": true, "check_cmd": true,
	"name": true, "names": true,
}

// applyKeywords splits a raw function-args mapping into requisites,
// control keywords, and the remaining doer-facing Args (§3 ChunkSpec
// attributes).
func applyKeywords(spec *state.ChunkSpec, args map[string]any) {
	for key, val := range args {
		switch {
		case key == "name":
			if s, ok := val.(string); ok {
				spec.Name = s
			}
		case key == "names":
			// handled by caller (expandNames)
		case key == "order":
			spec.OrderDirective = parseOrder(val)
		case key == "parallel":
			spec.Parallel, _ = val.(bool)
		case key == "failhard":
			spec.Failhard, _ = val.(bool)
		case key == "fire_event":
			switch v := val.(type) {
			case bool:
				spec.FireEvent = v
			case string:
				spec.FireEvent = true
				spec.FireEventTag = v
			}
		case key == "reload_modules":
			spec.ReloadModules, _ = val.(bool)
		case key == "onlyif":
			spec.OnlyIf = toStrings(val)
		case key == "unless":
			spec.Unless = toStrings(val)
		case key == "check_cmd":
			spec.CheckCmd = toStrings(val)
		case isRequisiteKeyword(key):
			kind := state.RequisiteKind(key)
			spec.Requisites[kind] = append(spec.Requisites[kind], toRefs(val)...)
		default:
			spec.Args[key] = val
		}
	}
}

func isRequisiteKeyword(key string) bool {
	switch state.RequisiteKind(key) {
	case state.ReqRequire, state.ReqRequireIn, state.ReqWatch, state.ReqWatchIn,
		state.ReqPrereq, state.ReqPrereqIn, state.ReqUse, state.ReqUseIn,
		state.ReqOnfail, state.ReqOnfailIn, state.ReqOnchanges, state.ReqOnchangesIn,
		state.ReqListen, state.ReqListenIn:
		return true
	default:
		return false
	}
}

func parseOrder(val any) state.Order {
	switch v := val.(type) {
	case string:
		if v == "first" {
			return state.Order{Explicit: true, First: true}
		}
		if v == "last" {
			return state.Order{Explicit: true, Last: true}
		}
	case int:
		return state.Order{Explicit: true, Value: v}
	case int64:
		return state.Order{Explicit: true, Value: int(v)}
	case float64:
		return state.Order{Explicit: true, Value: int(v)}
	}
	return state.Order{}
}

func toStrings(val any) []string {
	switch v := val.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// toRefs parses a requisite list entry into {module, id-or-name} refs.
// Each list element is a one-key mapping {module: id} per the corpus's
// convention (e.g. "- pkg: vim"), or a bare string meaning "any module".
func toRefs(val any) []state.RequisiteRef {
	list, ok := val.([]any)
	if !ok {
		return nil
	}
	out := make([]state.RequisiteRef, 0, len(list))
	for _, e := range list {
		switch v := e.(type) {
		case map[string]any:
			for mod, id := range v {
				out = append(out, state.RequisiteRef{Module: mod, ID: fmt.Sprintf("%v", id)})
			}
		case string:
			out = append(out, state.RequisiteRef{ID: v})
		}
	}
	return out
}

// expandNames expands a names:-bearing chunk spec into one sibling per
// element, each keeping the parent's args except `name` (§4.4). An
// element may itself be a one-key mapping for per-element arg overrides.
func expandNames(base state.ChunkSpec, namesVal any) []state.ChunkSpec {
	list, ok := namesVal.([]any)
	if !ok {
		return []state.ChunkSpec{base}
	}

	var out []state.ChunkSpec
	for _, elem := range list {
		spec := base.Clone()
		var name string
		switch v := elem.(type) {
		case string:
			name = v
		case map[string]any:
			for k, overrides := range v {
				name = k
				if om, ok := overrides.(map[string]any); ok {
					for ok, ov := range om {
						spec.Args[ok] = ov
					}
				}
			}
		}
		spec.Name = name
		spec.ID = base.ID + "_|-" + name
		out = append(out, spec)
	}
	return out
}
