package auth

import (
	"net/url"
	"strings"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// OriginPolicy is the trusted-origin check applied to state-changing browser
// requests. Patterns are full origins ("https://admin.example.com") or
// wildcard hosts ("https://*.example.com") matching any single-label
// subdomain.
type OriginPolicy struct {
	trusted []string
}

// NewOriginPolicy creates a policy from the configured origin patterns.
func NewOriginPolicy(trusted []string) *OriginPolicy {
	normalized := make([]string, 0, len(trusted))
	for _, t := range trusted {
		if t = strings.TrimSpace(strings.TrimSuffix(t, "/")); t != "" {
			normalized = append(normalized, t)
		}
	}
	return &OriginPolicy{trusted: normalized}
}

// Check validates an Origin header value. Requests without an Origin header
// (non-browser clients) pass; browser requests must match a trusted pattern.
func (p *OriginPolicy) Check(origin string) error {
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return domain.Unauthorizedf("origin %q is not trusted", origin)
	}

	for _, pattern := range p.trusted {
		if matchOrigin(pattern, u) {
			return nil
		}
	}
	return domain.Unauthorizedf("origin %q is not trusted", origin)
}

func matchOrigin(pattern string, origin *url.URL) bool {
	scheme, host, ok := strings.Cut(pattern, "://")
	if !ok {
		return false
	}
	if scheme != origin.Scheme {
		return false
	}
	if suffix, wildcard := strings.CutPrefix(host, "*."); wildcard {
		rest, matched := strings.CutSuffix(origin.Host, "."+suffix)
		return matched && rest != "" && !strings.Contains(rest, ".")
	}
	return host == origin.Host
}
