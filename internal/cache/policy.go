// Package cache implements the offline caching proxy: request classification,
// the versioned on-device asset cache and its install/activate lifecycle.
package cache

import (
	"net/url"
	"strings"
)

// Policy is the caching strategy applied to one outgoing request.
type Policy int

const (
	// PolicyNetworkFirst fetches from the network and falls back to the cache.
	PolicyNetworkFirst Policy = iota
	// PolicyCacheFirst serves the cached copy and refreshes it in the background.
	PolicyCacheFirst
	// PolicyBypass leaves the request alone.
	PolicyBypass
)

func (p Policy) String() string {
	switch p {
	case PolicyBypass:
		return "bypass"
	case PolicyCacheFirst:
		return "cache-first"
	default:
		return "network-first"
	}
}

// Request describes an outgoing request for classification.
type Request struct {
	Method string
	URL    *url.URL
}

// Rules holds the host allow-lists that select a policy.
type Rules struct {
	// BypassHosts are identity and database provider domains.
	BypassHosts []string
	// ImmutableHosts serve content that never changes under a URL, e.g. fonts.
	ImmutableHosts []string
}

// Classify picks exactly one policy for req. Bypass is checked first, then
// cache-first; everything else is network-first.
func (r Rules) Classify(req Request) Policy {
	if req.URL == nil {
		return PolicyNetworkFirst
	}
	host := req.URL.Hostname()
	if matchesAny(host, r.BypassHosts) {
		return PolicyBypass
	}
	if matchesAny(host, r.ImmutableHosts) {
		return PolicyCacheFirst
	}
	return PolicyNetworkFirst
}

func matchesAny(host string, patterns []string) bool {
	for _, p := range patterns {
		if matchHost(host, p) {
			return true
		}
	}
	return false
}

// matchHost reports whether host equals pattern or is a subdomain of it.
func matchHost(host, pattern string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	pattern = strings.TrimPrefix(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(pattern)), "."), ".")
	if host == "" || pattern == "" {
		return false
	}
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}
