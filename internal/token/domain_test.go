package token

import "testing"

func TestDomainAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"star allows anything", "https://evil.com", []string{"*"}, true},
		{"star among others", "https://evil.com", []string{"acme.com", "*"}, true},
		{"exact match", "https://acme.com", []string{"acme.com"}, true},
		{"exact match http scheme", "http://acme.com", []string{"acme.com"}, true},
		{"exact match with path", "https://acme.com/widget/page", []string{"acme.com"}, true},
		{"no match", "https://evil.com", []string{"acme.com"}, false},
		{"wildcard matches subdomain", "https://widget.acme.com", []string{"*.acme.com"}, true},
		{"wildcard matches deep subdomain", "https://a.b.acme.com", []string{"*.acme.com"}, true},
		{"wildcard matches apex", "https://acme.com", []string{"*.acme.com"}, true},
		{"wildcard rejects lookalike", "https://notacme.com", []string{"*.acme.com"}, false},
		{"localhost always allowed", "http://localhost:3000", []string{"acme.com"}, true},
		{"loopback always allowed", "http://127.0.0.1:8080", []string{"acme.com"}, true},
		{"empty allowlist denies", "https://acme.com", nil, false},
		{"host with port is not exact match", "https://acme.com:8443", []string{"acme.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DomainAllowed(tt.origin, tt.allowed); got != tt.want {
				t.Errorf("DomainAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}

func TestOriginHost(t *testing.T) {
	tests := []struct {
		origin string
		want   string
	}{
		{"https://acme.com", "acme.com"},
		{"http://acme.com/some/path", "acme.com"},
		{"acme.com/path", "acme.com"},
		{"https://sub.acme.com:3000/x", "sub.acme.com:3000"},
	}

	for _, tt := range tests {
		if got := originHost(tt.origin); got != tt.want {
			t.Errorf("originHost(%q) = %q, want %q", tt.origin, got, tt.want)
		}
	}
}
