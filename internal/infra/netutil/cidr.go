// Package netutil holds the small address-parsing helpers the admin
// gate needs.
package netutil

import "net"

// ParseCIDRs parses CIDR strings into networks, skipping entries that
// do not parse. A misconfigured allowlist entry silently narrowing
// access is preferable to one silently widening it.
func ParseCIDRs(cidrs []string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, s := range cidrs {
		_, n, err := net.ParseCIDR(s)
		if err != nil || n == nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
