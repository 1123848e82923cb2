package source

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxBodyChars bounds release text sent to the summarizer.
const MaxBodyChars = 3000

var strict = bluemonday.StrictPolicy()

// CleanText strips markup, collapses whitespace and truncates to maxChars runes.
func CleanText(s string, maxChars int) string {
	s = html.UnescapeString(strict.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	if maxChars > 0 && utf8.RuneCountInString(s) > maxChars {
		s = string([]rune(s)[:maxChars])
	}
	return s
}
