package match

import (
	"fmt"
	"strings"
)

// MatchGrain implements the "grain" matcher kind: expression is
// "grain_path:glob_value", a dotted grain lookup compared with glob
// semantics against its stringified value.
func MatchGrain(expression string, agent Agent) (bool, error) {
	path, pattern, ok := splitOnce(expression, ":")
	if !ok {
		return false, fmt.Errorf("match: grain: expected grain_path:value, got %q", expression)
	}
	val, ok := lookupDotted(agent.Grains, path)
	if !ok {
		return false, nil
	}
	return MatchGlob(pattern, Agent{ID: toString(val)})
}

// MatchPillar implements "pillar": identical shape against pillar data.
func MatchPillar(expression string, agent Agent) (bool, error) {
	path, pattern, ok := splitOnce(expression, ":")
	if !ok {
		return false, fmt.Errorf("match: pillar: expected pillar_path:value, got %q", expression)
	}
	val, ok := lookupDotted(agent.Pillar, path)
	if !ok {
		return false, nil
	}
	return MatchGlob(pattern, Agent{ID: toString(val)})
}

// MatchPillarExact implements "pillar_exact": like pillar but requires an
// exact string match rather than glob semantics.
func MatchPillarExact(expression string, agent Agent) (bool, error) {
	path, value, ok := splitOnce(expression, ":")
	if !ok {
		return false, fmt.Errorf("match: pillar_exact: expected pillar_path:value, got %q", expression)
	}
	val, ok := lookupDotted(agent.Pillar, path)
	if !ok {
		return false, nil
	}
	return strings.TrimSpace(toString(val)) == strings.TrimSpace(value), nil
}
