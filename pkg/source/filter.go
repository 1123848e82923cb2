package source

import "strings"

// Filter drops releases whose title or ministry mention an excluded keyword
// (vacancy notices, tender listings and similar noise).
type Filter struct {
	exclude []string
}

// NewFilter creates a filter from case-insensitive exclude keywords.
func NewFilter(excludeKeywords []string) *Filter {
	exclude := make([]string, 0, len(excludeKeywords))
	for _, kw := range excludeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			exclude = append(exclude, kw)
		}
	}
	return &Filter{exclude: exclude}
}

// Allows reports whether r survives the filter. A nil filter allows everything.
func (f *Filter) Allows(r Release) bool {
	if f == nil || len(f.exclude) == 0 {
		return true
	}
	lower := strings.ToLower(r.Title + " " + r.Ministry)
	for _, ex := range f.exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}
	return true
}

// Apply returns the releases that survive the filter, preserving order.
func (f *Filter) Apply(releases []Release) []Release {
	var kept []Release
	for _, r := range releases {
		if f.Allows(r) {
			kept = append(kept, r)
		}
	}
	return kept
}
