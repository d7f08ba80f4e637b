// Package privacy removes diary content its author marked as private.
package privacy

import (
	"regexp"
	"strings"
)

var (
	// privateSpanRegex matches <private>...</private> spans, case-insensitively
	privateSpanRegex = regexp.MustCompile(`(?is)<private>.*?</private>`)

	// gapRegex matches the run of spaces left where a span was removed
	gapRegex = regexp.MustCompile(`[ \t]{2,}`)
)

// StripPrivate removes all <private>...</private> spans from an entry body.
// The gap a span leaves collapses to one space. An unclosed tag is kept verbatim.
func StripPrivate(body string) string {
	if !HasPrivate(body) {
		return body
	}
	out := privateSpanRegex.ReplaceAllString(body, " ")
	out = gapRegex.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// HasPrivate reports whether body contains at least one complete private span.
func HasPrivate(body string) bool {
	return privateSpanRegex.MatchString(body)
}
