package domain

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidateSlug checks that a slug is non-empty, lowercase, and uses only
// alphanumerics separated by single hyphens.
func ValidateSlug(slug string) error {
	if slug == "" {
		return Validationf("slug must not be empty")
	}
	if len(slug) > 200 {
		return Validationf("slug must be at most 200 characters")
	}
	if !slugPattern.MatchString(slug) {
		return Validationf("invalid slug format: %q", slug)
	}
	return nil
}

// DeriveSlug converts an arbitrary name into a URI slug: diacritics are
// stripped, everything non-alphanumeric collapses to single hyphens.
func DeriveSlug(name string) string {
	stripped, _, err := transform.String(transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	), name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(stripped) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
