// Package reconcile joins evaluated candidates with scraped profiles and
// projects the result into persisted contact rows.
package reconcile

import (
	"net/url"
	"strings"
)

// NormalizeProfileURL reduces a profile reference to its lower-cased path so
// that host, scheme, query and trailing-slash variants share one key. It
// returns "" for empty or malformed input; "" is never a valid join key.
func NormalizeProfileURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") && !strings.HasPrefix(raw, "/") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	path := strings.ToLower(strings.TrimRight(u.Path, "/"))
	if path == "" {
		return ""
	}
	return path
}

// IsProfileLink reports whether raw points at an individual LinkedIn profile.
func IsProfileLink(raw string) bool {
	if !strings.Contains(strings.ToLower(raw), "linkedin.com/in/") {
		return false
	}
	return strings.HasPrefix(NormalizeProfileURL(raw), "/in/")
}
