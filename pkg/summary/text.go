package summary

import (
	"regexp"
	"strings"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/documents"
)

// PrepareContext joins page texts in order and truncates the result to
// maxChars runes. maxChars <= 0 keeps everything.
func PrepareContext(pages []documents.Page, maxChars int) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return truncateRunes(strings.Join(parts, "\n\n"), maxChars)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

var (
	preamble = regexp.MustCompile(`(?i)^\s*(here\s+is|here's|below\s+is|the\s+following\s+is)\b[^\n:]*:\s*`)
	label    = regexp.MustCompile(`(?i)^\s*(\*\*)?summary(\*\*)?\s*:\s*`)
	heading  = regexp.MustCompile(`(?m)^\s*#{1,6}\s+`)
	emphasis = regexp.MustCompile(`\*\*|__|\*`)
)

// PostProcess removes chat preambles and markdown from a model summary,
// folds it into one paragraph and caps it at maxWords words.
func PostProcess(raw string, maxWords int) string {
	s := strings.TrimSpace(raw)
	for {
		t := label.ReplaceAllString(preamble.ReplaceAllString(s, ""), "")
		if t == s {
			break
		}
		s = t
	}
	s = heading.ReplaceAllString(s, "")
	s = emphasis.ReplaceAllString(s, "")
	words := strings.Fields(s)
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	s = strings.Join(words, " ")
	return strings.TrimSpace(strings.Trim(s, "\"'`“”"))
}
