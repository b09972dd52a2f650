package match

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

// MatchIPCIDR implements the "ipcidr" matcher kind: expression is a CIDR
// block; it matches when one of the agent's grains["ipv4"]/["ipv6"]
// address lists falls inside it.
func MatchIPCIDR(expression string, agent Agent) (bool, error) {
	_, network, err := net.ParseCIDR(expression)
	if err != nil {
		return false, fmt.Errorf("match: ipcidr: invalid CIDR %q: %w", expression, err)
	}
	for _, key := range []string{"ipv4", "ipv6", "fqdn_ip4", "fqdn_ip6"} {
		addrs, ok := agent.Grains[key]
		if !ok {
			continue
		}
		list, ok := addrs.([]any)
		if !ok {
			continue
		}
		for _, a := range list {
			ip := net.ParseIP(toString(a))
			if ip != nil && network.Contains(ip) {
				return true, nil
			}
		}
	}
	return false, nil
}

var rangePattern = regexp.MustCompile(`^([A-Za-z_./-]*?)(\d+)-(\d+)$`)

// MatchRange implements the "range" matcher kind. Unlike the upstream
// range-server-backed matcher, this core has no external range-server
// collaborator (§1 scope), so it evaluates a numeric cluster range
// directly against the agent id's trailing number: expression
// "web01-10" matches any id "web<N>" with N in [1,10] and the same
// non-numeric prefix.
func MatchRange(expression string, agent Agent) (bool, error) {
	m := rangePattern.FindStringSubmatch(expression)
	if m == nil {
		return false, fmt.Errorf("match: range: expected prefix<lo>-<hi>, got %q", expression)
	}
	prefix, loStr, hiStr := m[1], m[2], m[3]
	lo, err := strconv.Atoi(loStr)
	if err != nil {
		return false, err
	}
	hi, err := strconv.Atoi(hiStr)
	if err != nil {
		return false, err
	}
	if lo > hi {
		lo, hi = hi, lo
	}

	idPattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(\d+)$`)
	idm := idPattern.FindStringSubmatch(agent.ID)
	if idm == nil {
		return false, nil
	}
	n, err := strconv.Atoi(idm[1])
	if err != nil {
		return false, nil
	}
	return n >= lo && n <= hi, nil
}
