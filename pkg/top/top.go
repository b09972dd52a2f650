// Package top resolves a top-file mapping (environment -> target
// expression -> source-unit list) against an agent identity into the set
// of source units that apply to it (C2, §4.2).
package top

import (
	"fmt"
	"sort"

	"github.com/mattferris/statecraft/pkg/match"
)

// MergeStrategy is the top_file_merging_strategy config option (§6).
type MergeStrategy string

const (
	MergeAll  MergeStrategy = "merge"
	MergeSame MergeStrategy = "same"
)

// TargetEntry is one target-expression -> unit-list line of a top file,
// preserving its position in the document (§4.2 evaluates targets in
// document order, not alphabetically).
type TargetEntry struct {
	Target string
	Units  []string
}

// Top is one environment's parsed top-file body, in document order.
type Top []TargetEntry

// Data is the full set of top files loaded for a run, one per environment.
type Data map[string]Top

// Options controls how Resolve merges and matches.
type Options struct {
	Strategy MergeStrategy

	// DefaultTopEnv is the fallback environment used when Strategy is
	// MergeSame, the current env is "base", and the data holds no top for
	// "base" at all (§4.2).
	DefaultTopEnv string

	// RequestedEnv, if non-empty, restricts resolution to a single named
	// environment regardless of Strategy (§4.2 "explicit environment").
	RequestedEnv string

	// CurrentEnv is the environment the run is notionally executing
	// under, used by MergeSame.
	CurrentEnv string

	// DefaultMatcher is the matcher kind used for a target expression
	// with no explicit kind prefix. §4.2 specifies "compound" as the
	// default for top files.
	DefaultMatcher string
}

// Resolve evaluates data against agent per Options and returns, per
// environment, the ordered (deduplicated, first-occurrence-wins) list of
// source-unit names that apply (§4.2 merge rules).
func Resolve(data Data, agent match.Agent, registry *match.Registry, opts Options) (map[string][]string, error) {
	if opts.DefaultMatcher == "" {
		opts.DefaultMatcher = "compound"
	}

	envs := envsToConsider(data, opts)

	result := make(map[string][]string)
	seen := make(map[string]map[string]bool) // env -> unit -> seen

	for _, env := range envs {
		top, ok := data[env]
		if !ok {
			continue
		}
		for _, entry := range top {
			matched, err := registry.Match(opts.DefaultMatcher, entry.Target, agent)
			if err != nil {
				return nil, fmt.Errorf("top: environment %q: target %q: %w", env, entry.Target, err)
			}
			if !matched {
				continue
			}
			for _, unit := range entry.Units {
				destEnv := env
				if seen[destEnv] == nil {
					seen[destEnv] = make(map[string]bool)
				}
				if seen[destEnv][unit] {
					continue
				}
				seen[destEnv][unit] = true
				result[destEnv] = append(result[destEnv], unit)
			}
		}
	}

	return result, nil
}

// envsToConsider implements the environment-selection half of §4.2's
// merging rules, independent of target matching.
func envsToConsider(data Data, opts Options) []string {
	if opts.RequestedEnv != "" {
		return []string{opts.RequestedEnv}
	}

	switch opts.Strategy {
	case MergeSame:
		env := opts.CurrentEnv
		if env == "" {
			env = "base"
		}
		if _, ok := data[env]; ok {
			return []string{env}
		}
		if env == "base" && opts.DefaultTopEnv != "" {
			return []string{opts.DefaultTopEnv}
		}
		return nil
	default: // MergeAll / unset
		return sortedKeys(data)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
