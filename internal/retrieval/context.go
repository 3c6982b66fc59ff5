package retrieval

import (
	"strings"
	"unicode/utf8"
)

const DefaultMaxContextChars = 4000

// BuildContext joins result summaries in rank order into at most maxChars
// bytes. Separators count against the budget. The section that overflows is
// cut to the remaining budget and later results are dropped.
func BuildContext(results []SearchResult, maxChars int, includeSourceIDs bool) string {
	if maxChars <= 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		section := r.Summary
		if includeSourceIDs && r.SourceID != "" {
			section = "source_id: " + r.SourceID + "\n" + section
		}

		sep := ""
		if i > 0 {
			sep = "\n"
		}
		if b.Len()+len(sep)+len(section) > maxChars {
			remaining := maxChars - b.Len() - len(sep)
			if remaining > 0 {
				b.WriteString(sep)
				b.WriteString(truncate(section, remaining))
			}
			break
		}
		b.WriteString(sep)
		b.WriteString(section)
	}
	return strings.TrimSpace(b.String())
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
