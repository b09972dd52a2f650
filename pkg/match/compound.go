package match

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-bexpr"
)

// compoundPrefixes maps a compound-expression letter prefix to the
// matcher kind it selects (the "G@os:Ubuntu and not L@host1,host2" style
// grammar): bare terms with no recognized prefix default to glob.
var compoundPrefixes = map[string]string{
	"G": "grain",
	"P": "pillar",
	"L": "list",
	"E": "pcre",
	"I": "pillar_exact",
	"S": "ipcidr",
	"R": "range",
}

// matchCompound implements the "compound" matcher kind (§6, default for
// top-file target expressions): an and/or/not/parens boolean grammar over
// prefixed matcher-kind atoms.
func (r *Registry) matchCompound(expression string, agent Agent) (bool, error) {
	p := &compoundParser{tokens: tokenizeCompound(expression), reg: r, agent: agent}
	v, err := p.parseOr()
	if err != nil {
		return false, fmt.Errorf("match: compound: %w", err)
	}
	if p.pos != len(p.tokens) {
		return false, fmt.Errorf("match: compound: unexpected trailing tokens in %q", expression)
	}
	return v, nil
}

// matchNodegroup implements "nodegroup": expression is a nodegroup name
// resolved to its (assumed compound-grammar) definition and re-evaluated.
func (r *Registry) matchNodegroup(expression string, agent Agent) (bool, error) {
	def, ok := r.nodegroups[expression]
	if !ok {
		return false, fmt.Errorf("match: nodegroup: unknown nodegroup %q", expression)
	}
	return r.matchCompound(def, agent)
}

type compoundParser struct {
	tokens []string
	pos    int
	reg    *Registry
	agent  Agent
}

func (p *compoundParser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *compoundParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *compoundParser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for strings.EqualFold(p.peek(), "or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *compoundParser) parseAnd() (bool, error) {
	left, err := p.parseNot()
	if err != nil {
		return false, err
	}
	for strings.EqualFold(p.peek(), "and") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *compoundParser) parseNot() (bool, error) {
	if strings.EqualFold(p.peek(), "not") {
		p.next()
		v, err := p.parseNot()
		if err != nil {
			return false, err
		}
		return !v, nil
	}
	return p.parseAtom()
}

func (p *compoundParser) parseAtom() (bool, error) {
	tok := p.next()
	if tok == "(" {
		v, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if p.next() != ")" {
			return false, fmt.Errorf("unbalanced parentheses")
		}
		return v, nil
	}
	if tok == "" {
		return false, fmt.Errorf("unexpected end of expression")
	}
	return p.evalAtom(tok)
}

// evalAtom dispatches a single "PREFIX@rest" or bare-glob atom through
// the matcher registry. Grain atoms whose remainder contains ==, !=, >=
// or <= ("G@os_family==RedHat") are evaluated with go-bexpr against the
// grains map directly instead of through the plain "path:glob" grain
// matcher. tokenizeCompound splits atoms at whitespace, so an atom never
// carries the spaced " in " / " not in " forms looksLikeBexpr also checks.
func (p *compoundParser) evalAtom(tok string) (bool, error) {
	prefix, rest, hasAt := strings.Cut(tok, "@")
	if !hasAt {
		return MatchGlob(tok, p.agent)
	}
	kind, ok := compoundPrefixes[strings.ToUpper(prefix)]
	if !ok {
		return false, fmt.Errorf("unknown compound prefix %q", prefix)
	}
	if kind == "grain" && looksLikeBexpr(rest) {
		return evalBexprGrain(rest, p.agent.Grains)
	}
	return p.reg.Match(kind, rest, p.agent)
}

func looksLikeBexpr(s string) bool {
	for _, op := range []string{"==", "!=", ">=", "<=", " in ", " not in "} {
		if strings.Contains(s, op) {
			return true
		}
	}
	return false
}

func evalBexprGrain(expr string, grains map[string]any) (bool, error) {
	eval, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return false, fmt.Errorf("bexpr: %w", err)
	}
	ok, err := eval.Evaluate(grains)
	if err != nil {
		return false, fmt.Errorf("bexpr: %w", err)
	}
	return ok, nil
}

// tokenizeCompound splits a compound expression into atoms, parens, and
// and/or/not keywords. Atoms (kind@value or bare globs) may not contain
// whitespace or parens themselves.
func tokenizeCompound(expr string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range expr {
		switch {
		case r == '(' || r == ')':
			flush()
			tokens = append(tokens, string(r))
		case r == ' ' || r == '\t':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}
