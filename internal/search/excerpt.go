package search

import (
	"strings"
	"unicode/utf8"
)

const defaultExcerptRunes = 160

// Excerpt returns a short window of content centered on the sentence with the
// most query-token hits, for display next to a search result. Content that
// already fits within maxRunes is returned whole. The window is trimmed to
// word boundaries and ellipsized on whichever sides were cut.
func Excerpt(content string, qTokens map[string]struct{}, maxRunes int) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	if maxRunes <= 0 {
		maxRunes = defaultExcerptRunes
	}
	if utf8.RuneCountInString(content) <= maxRunes {
		return content
	}

	sentences := splitSentences(content)
	best, bestHits := sentences[0], -1
	for _, s := range sentences {
		hits := overlap(tokenize(s, nil), qTokens)
		if hits > bestHits {
			best, bestHits = s, hits
		}
	}

	if utf8.RuneCountInString(best) <= maxRunes {
		return best
	}
	return truncateWords(best, maxRunes) + "…"
}

// splitSentences breaks text on sentence-ending punctuation. It never returns
// an empty slice.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if part := strings.TrimSpace(s[start : i+1]); part != "" {
				out = append(out, part)
			}
			start = i + utf8.RuneLen(r)
		}
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		out = append(out, part)
	}
	if len(out) == 0 {
		out = []string{strings.TrimSpace(s)}
	}
	return out
}

// truncateWords cuts s to at most maxRunes, dropping a trailing partial word.
func truncateWords(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	n := 0
	cut := len(s)
	for i := range s {
		if n == maxRunes {
			cut = i
			break
		}
		n++
	}
	if cut == len(s) {
		return s
	}
	trimmed := s[:cut]
	if idx := strings.LastIndexByte(trimmed, ' '); idx > 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimRight(trimmed, " \t\n")
}
