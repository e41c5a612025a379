// Package sanitize cleans user-supplied text before it is stored or sent to
// builders.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Text removes markup, including tags smuggled in as entities, and trims the
// result.
func Text(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = tagPattern.ReplaceAllString(html.UnescapeString(s), "")
	return strings.TrimSpace(s)
}

// TextOr is Text with a fallback for input that is empty once cleaned.
func TextOr(s, fallback string) string {
	if cleaned := Text(s); cleaned != "" {
		return cleaned
	}
	return fallback
}

// PlainText is Text on a single line, cut to at most maxRunes runes.
// maxRunes <= 0 keeps the whole string.
func PlainText(s string, maxRunes int) string {
	out := strings.Join(strings.Fields(Text(s)), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(out) <= maxRunes {
		return out
	}
	return string([]rune(out)[:maxRunes])
}
