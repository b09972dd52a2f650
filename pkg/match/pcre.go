package match

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// MatchPCRE implements the "pcre" matcher kind: expression is a
// PCRE-flavored regular expression matched against the agent id.
// stdlib `regexp` is RE2 and cannot express the backreferences/lookaround
// that pcre-kind target expressions in the wild assume, so this uses a
// true PCRE-compatible engine (§6).
func MatchPCRE(expression string, agent Agent) (bool, error) {
	re, err := regexp2.Compile(expression, regexp2.None)
	if err != nil {
		return false, fmt.Errorf("match: pcre: invalid expression %q: %w", expression, err)
	}
	ok, err := re.MatchString(agent.ID)
	if err != nil {
		return false, fmt.Errorf("match: pcre: %w", err)
	}
	return ok, nil
}

// MatchGrainPCRE implements "grain_pcre": expression is "grain_path:pattern",
// where grain_path is a dotted lookup into the agent's grains.
func MatchGrainPCRE(expression string, agent Agent) (bool, error) {
	path, pattern, ok := splitOnce(expression, ":")
	if !ok {
		return false, fmt.Errorf("match: grain_pcre: expected grain_path:pattern, got %q", expression)
	}
	val, ok := lookupDotted(agent.Grains, path)
	if !ok {
		return false, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return false, fmt.Errorf("match: grain_pcre: invalid pattern %q: %w", pattern, err)
	}
	return re.MatchString(toString(val))
}

// MatchPillarPCRE implements "pillar_pcre", identical shape against pillar.
func MatchPillarPCRE(expression string, agent Agent) (bool, error) {
	path, pattern, ok := splitOnce(expression, ":")
	if !ok {
		return false, fmt.Errorf("match: pillar_pcre: expected pillar_path:pattern, got %q", expression)
	}
	val, ok := lookupDotted(agent.Pillar, path)
	if !ok {
		return false, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return false, fmt.Errorf("match: pillar_pcre: invalid pattern %q: %w", pattern, err)
	}
	return re.MatchString(toString(val))
}

func splitOnce(s, sep string) (string, string, bool) {
	i := strings.Index(s, sep)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+len(sep):], true
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// lookupDotted resolves a dotted path ("os.family") against a nested
// map[string]any, the same convention grains/pillar trees use throughout.
func lookupDotted(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
