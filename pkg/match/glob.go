package match

import "github.com/gobwas/glob"

// MatchGlob implements the "glob" matcher kind: expression is a shell-style
// glob pattern matched against the agent id (§6).
func MatchGlob(expression string, agent Agent) (bool, error) {
	g, err := glob.Compile(expression)
	if err != nil {
		return false, err
	}
	return g.Match(agent.ID), nil
}

// MatchList implements the "list" matcher kind: expression is a
// comma-separated list of exact agent ids.
func MatchList(expression string, agent Agent) (bool, error) {
	for _, id := range splitCSV(expression) {
		if id == agent.ID {
			return true, nil
		}
	}
	return false, nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, trimSpace(s[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}
