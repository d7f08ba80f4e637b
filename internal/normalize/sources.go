package normalize

import (
	"strings"

	"github.com/thebtf/nurturenote/pkg/models"
)

const trailingPunct = " \t;,."

// sourceKey identifies a source for deduplication: by URL when present,
// otherwise by case- and whitespace-insensitive text. Empty means unusable.
func sourceKey(s models.Source) string {
	if s.URL != "" {
		return "url:" + s.URL
	}
	if t := foldText(s.Text); t != "" {
		return "text:" + t
	}
	return ""
}

func foldText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// MergeSources appends candidates to existing, skipping any source whose
// identity is already present. The first occurrence wins and order is kept.
func MergeSources(existing, candidates []models.Source) []models.Source {
	out := make([]models.Source, 0, len(existing)+len(candidates))
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, group := range [][]models.Source{existing, candidates} {
		for _, s := range group {
			s = cleanSource(s)
			key := sourceKey(s)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// cleanSource trims fields and promotes a lone title to text so the source
// stays identifiable.
func cleanSource(s models.Source) models.Source {
	s.URL = strings.TrimSpace(s.URL)
	s.Title = strings.TrimSpace(s.Title)
	s.Text = strings.TrimSpace(s.Text)
	if s.URL == "" && s.Text == "" && s.Title != "" {
		s.Text, s.Title = s.Title, ""
	}
	return s
}

// toSources coerces a decoded sources value into Source records.
func toSources(v any) []models.Source {
	var out []models.Source
	for _, item := range asList(v) {
		if isFalsy(item) {
			continue
		}
		switch t := item.(type) {
		case map[string]any:
			out = append(out, models.Source{
				URL:   firstText(t, "url", "source_url", "link"),
				Title: firstText(t, "title", "name"),
				Text:  firstText(t, "text", "quote", "citation"),
			})
		default:
			out = append(out, models.Source{Text: stringify(t)})
		}
	}
	return out
}

// SplitTrailingCitation separates a balanced trailing parenthetical from line.
//
// The scan runs backward from the final ')' tracking nesting depth and stops at
// the '(' that balances it, so "value (a (b) c)" yields ("value", "a (b) c").
// Trailing spaces and ";,." are trimmed from the preceding text. When line does
// not end in a balanced group, it is returned trimmed with ok false.
func SplitTrailingCitation(line string) (text, citation string, ok bool) {
	s := strings.TrimSpace(line)
	if !strings.HasSuffix(s, ")") {
		return s, "", false
	}
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				citation = strings.TrimSpace(s[i+1 : len(s)-1])
				text = strings.TrimRight(s[:i], trailingPunct)
				return text, citation, true
			}
		}
	}
	return s, "", false
}

// splitGuidelines moves trailing citations out of guideline lines into sources.
// A line reduced to nothing is dropped while its citation is kept.
func splitGuidelines(lines []string, sources []models.Source) ([]string, []models.Source) {
	known := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if t := foldText(s.Text); t != "" {
			known[t] = struct{}{}
		}
	}

	out := make([]string, 0, len(lines))
	var found []models.Source
	for _, line := range lines {
		text, citation, ok := SplitTrailingCitation(line)
		if !ok {
			out = append(out, text)
			continue
		}
		if key := foldText(citation); key != "" {
			if _, dup := known[key]; !dup {
				known[key] = struct{}{}
				found = append(found, models.Source{Text: citation})
			}
		}
		if text != "" {
			out = append(out, text)
		}
	}
	return out, MergeSources(sources, found)
}
