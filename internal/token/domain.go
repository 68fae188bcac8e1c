package token

import "strings"

// DomainAllowed reports whether the request origin passes the token's domain
// allowlist. A literal "*" entry opens the list entirely. Patterns of the
// form "*.example.com" match example.com and any of its subdomains, but not
// notexample.com. Origins on localhost or 127.0.0.1 are always allowed so
// local development against a restricted token keeps working.
func DomainAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" {
			return true
		}
	}

	host := originHost(origin)

	if strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") {
		return true
	}

	for _, a := range allowed {
		if host == a {
			return true
		}
		if suffix, ok := strings.CutPrefix(a, "*."); ok {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return true
			}
		}
	}

	return false
}

// originHost strips the scheme and any path from an Origin or Referer value,
// leaving the bare host (with port, if present).
func originHost(origin string) string {
	host := strings.TrimPrefix(origin, "https://")
	host = strings.TrimPrefix(host, "http://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	return host
}
