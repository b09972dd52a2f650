// Package match implements the pluggable matcher registry (§6): for each
// matcher kind, a function (expression, agent id, grains, pillar) -> bool.
// The top resolver (pkg/top) uses this registry to evaluate target
// expressions against an agent identity.
package match

// Agent is the identity a target expression is matched against.
type Agent struct {
	ID     string
	Grains map[string]any
	Pillar map[string]any
}

// Matcher evaluates a single target expression against an agent.
type Matcher func(expression string, agent Agent) (bool, error)

// Registry holds one Matcher per kind, keyed by the names enumerated in
// §6: glob, pcre, grain, grain_pcre, list, pillar, pillar_pcre,
// pillar_exact, ipcidr, range, nodegroup, compound.
type Registry struct {
	matchers map[string]Matcher

	// nodegroups backs the "nodegroup" kind: a name -> compound expression
	// mapping configured ahead of time (nodegroups are themselves compound
	// expressions by convention).
	nodegroups map[string]string
}

// NewRegistry builds the default registry with every built-in matcher kind
// wired in, plus whatever nodegroup definitions are supplied.
func NewRegistry(nodegroups map[string]string) *Registry {
	r := &Registry{
		matchers:   make(map[string]Matcher),
		nodegroups: nodegroups,
	}
	r.Register("glob", MatchGlob)
	r.Register("pcre", MatchPCRE)
	r.Register("list", MatchList)
	r.Register("grain", MatchGrain)
	r.Register("grain_pcre", MatchGrainPCRE)
	r.Register("pillar", MatchPillar)
	r.Register("pillar_pcre", MatchPillarPCRE)
	r.Register("pillar_exact", MatchPillarExact)
	r.Register("ipcidr", MatchIPCIDR)
	r.Register("range", MatchRange)
	r.Register("nodegroup", r.matchNodegroup)
	r.Register("compound", r.matchCompound)
	return r
}

// Register installs or overrides the Matcher for kind.
func (r *Registry) Register(kind string, m Matcher) {
	r.matchers[kind] = m
}

// Match looks up kind and evaluates expression against agent. An unknown
// kind is a reference error.
func (r *Registry) Match(kind, expression string, agent Agent) (bool, error) {
	m, ok := r.matchers[kind]
	if !ok {
		return false, &UnknownKindError{Kind: kind}
	}
	return m(expression, agent)
}

// UnknownKindError is returned when a target expression names a matcher
// kind the registry has no implementation for.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return "match: unknown matcher kind " + e.Kind
}
