package puzzle

import (
	"context"
	"fmt"

	"github.com/elonfeng/birdle/internal/store"
	"github.com/elonfeng/birdle/pkg/source"
)

// View is what the game needs to render a day: the four posts and the
// four solution words, in the same order.
type View struct {
	ID       string        `json:"id"`
	DayIndex int           `json:"day_index"`
	Words    []string      `json:"words"`
	Posts    []source.Post `json:"posts"`
}

// LoadView resolves a puzzle's post references.
func LoadView(ctx context.Context, s store.Store, p *store.Puzzle) (*View, error) {
	words, err := Words(p.Text)
	if err != nil {
		return nil, err
	}

	posts, err := s.GetPosts(ctx, p.DayIndex, p.TweetIDs())
	if err != nil {
		return nil, err
	}
	if len(posts) != WordCount {
		return nil, fmt.Errorf("%w: puzzle %s resolves %d of %d posts", ErrDataIntegrity, p.ID, len(posts), WordCount)
	}

	return &View{ID: p.ID, DayIndex: p.DayIndex, Words: words, Posts: posts}, nil
}

// CurrentView returns the latest picked puzzle, or nil when none exists.
func CurrentView(ctx context.Context, s store.Store) (*View, error) {
	p, err := s.CurrentPuzzle(ctx)
	if err != nil || p == nil {
		return nil, err
	}
	return LoadView(ctx, s, p)
}

// DayView returns the picked puzzle of dayIndex, or nil when none exists.
func DayView(ctx context.Context, s store.Store, dayIndex int) (*View, error) {
	p, err := s.PickedPuzzle(ctx, dayIndex)
	if err != nil || p == nil {
		return nil, err
	}
	return LoadView(ctx, s, p)
}
