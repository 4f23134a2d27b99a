package source

import (
	"context"
	"time"
)

// Post is a single scraped post. It doubles as the tweets table row.
type Post struct {
	ID               string `json:"id" db:"id"`
	Text             string `json:"text" db:"text"`
	Author           string `json:"author" db:"author"`
	AuthorFull       string `json:"author_full" db:"author_full"`
	AuthorProfileURL string `json:"author_profile_url" db:"author_profile_url"`
	Likes            int    `json:"likes" db:"likes"`
	Retweets         int    `json:"retweets" db:"retweets"`
	Quotes           int    `json:"quotes" db:"quotes"`
	Replies          int    `json:"replies" db:"replies"`
	DayIndex         int    `json:"day_index" db:"day_index"`

	// Set by adapters for filtering only, never stored.
	PollIDs  []string `json:"-" db:"-"`
	HasMedia bool     `json:"-" db:"-"`
}

// Window is the half-open time range a search covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Searcher returns the original posts an author published inside a window.
// Implementations may make several round trips to page through results.
// Failures are reported as *Error so callers can switch on the Kind.
type Searcher interface {
	Name() string
	Search(ctx context.Context, handle string, w Window) ([]Post, error)
}
