package source

import "strings"

// ReservedMarker renders as a blank in the game grid, so posts carrying it
// cannot be used as puzzle content.
const ReservedMarker = "_"

// Filter decides whether a post is usable as puzzle content.
type Filter struct {
	exclude []string
}

// NewFilter creates a filter that always rejects the reserved marker plus
// any extra case-insensitive keywords.
func NewFilter(excludeKeywords []string) *Filter {
	exclude := []string{ReservedMarker}
	for _, kw := range excludeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			exclude = append(exclude, kw)
		}
	}
	return &Filter{exclude: exclude}
}

// Allows returns false for posts with polls, media or excluded text.
func (f *Filter) Allows(p Post) bool {
	if len(p.PollIDs) > 0 || p.HasMedia {
		return false
	}
	lower := strings.ToLower(p.Text)
	for _, ex := range f.exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}
	return true
}

// Apply returns the posts the filter allows, preserving order.
func (f *Filter) Apply(posts []Post) []Post {
	kept := posts[:0:0]
	for _, p := range posts {
		if f.Allows(p) {
			kept = append(kept, p)
		}
	}
	return kept
}
