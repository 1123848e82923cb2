package summarize

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned when model output does not follow the
// title/summary convention.
var ErrMalformedResponse = errors.New("malformed llm response")

// Result is a generated title and summary at any granularity.
type Result struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// ParseTitleSummary splits model output into a title and a summary.
//
// The convention: after trimming whitespace and an enclosing ``` fence, the
// first non-empty line is the title and every following line, trimmed as a
// block, is the summary. The title is normalized with CleanTitle. The
// response is malformed when it is empty, when the cleaned title is empty, or
// when no summary follows the title.
func ParseTitleSummary(raw string) (Result, error) {
	lines := contentLines(raw)
	if len(lines) == 0 {
		return Result{}, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	title := CleanTitle(lines[0])
	if title == "" {
		return Result{}, fmt.Errorf("%w: empty title line %q", ErrMalformedResponse, lines[0])
	}

	summary := strings.TrimSpace(strings.Join(lines[1:], "\n"))
	if summary == "" {
		return Result{}, fmt.Errorf("%w: no summary after title %q", ErrMalformedResponse, title)
	}
	return Result{Title: title, Summary: summary}, nil
}

// ParseHeadline returns the cleaned first non-empty line of model output.
// Anything after it is ignored.
func ParseHeadline(raw string) (string, error) {
	lines := contentLines(raw)
	if len(lines) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	title := CleanTitle(lines[0])
	if title == "" {
		return "", fmt.Errorf("%w: empty headline %q", ErrMalformedResponse, lines[0])
	}
	return title, nil
}

// CleanTitle strips markdown heading marks, a "Title:"/"Headline:" label,
// wrapping bold or quotes, and a trailing period.
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "#")
	s = strings.TrimSpace(s)

	lower := strings.ToLower(s)
	for _, label := range []string{"title:", "headline:"} {
		if strings.HasPrefix(lower, label) {
			s = strings.TrimSpace(s[len(label):])
			break
		}
	}

	for {
		prev := s
		s = strings.TrimRight(strings.TrimSpace(s), ".")
		for _, pair := range [][2]string{{"**", "**"}, {`"`, `"`}, {"'", "'"}, {"“", "”"}} {
			if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
				s = s[len(pair[0]) : len(s)-len(pair[1])]
			}
		}
		if s == prev {
			break
		}
	}
	return strings.TrimSpace(s)
}

// contentLines returns the lines of raw with an enclosing code fence removed
// and leading blank lines dropped.
func contentLines(raw string) []string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw, "\n"); idx >= 0 {
			raw = raw[idx+1:]
		} else {
			raw = ""
		}
		raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "```"))
	}
	if raw == "" {
		return nil
	}

	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return lines
}
