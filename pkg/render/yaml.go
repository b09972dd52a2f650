package render

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DataStage is the structured-data parse stage: the final stage in any
// render chain, required to yield a mapping (§4.1).
const DataStage = "yaml"

// ParseData decodes src as YAML into a canonical mapping. gopkg.in/yaml.v3
// is used rather than encoding/json because source units are
// human-authored documents (comments, anchors, multi-document framing are
// all plausible) — the structured-data stage any SaltStack-shaped system
// uses (§9 "Templating / rendering").
func ParseData(src []byte) (map[string]any, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(src, &raw); err != nil {
		return nil, fmt.Errorf("render: structured-data parse failed: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return normalizeKeys(raw), nil
}

// normalizeKeys walks a decoded document and converts any
// map[string]interface{} nested under map[interface{}]interface{} forms
// (yaml.v3 already yields string-keyed maps for string keys, but nested
// sequences of mappings still need a consistent []any/map[string]any shape
// for the rest of the compiler to type-assert against).
func normalizeKeys(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = normalizeValue(val)
		}
		return out
	}
	return map[string]any{}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeKeys(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return t
	}
}
