// Package puzzle turns a day's posts into candidate puzzles and picks the
// daily one.
package puzzle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/elonfeng/birdle/internal/store"
	"github.com/elonfeng/birdle/pkg/alert"
	"github.com/elonfeng/birdle/pkg/source"
)

const (
	// WordCount is the number of words in every saying.
	WordCount = 4
	// MaxPuzzles caps the candidates produced per day.
	MaxPuzzles = 10
	// Cooldown keeps a recently used saying out of candidate generation.
	Cooldown = 3 * 24 * time.Hour
)

// ErrDataIntegrity marks stored rows that violate the data model and need
// a human to fix them.
var ErrDataIntegrity = errors.New("data integrity")

// Words splits a saying into its words after dropping the first comma. The
// game view uses the same split, so both sides agree on the solution.
func Words(text string) ([]string, error) {
	words := strings.Split(strings.Replace(text, ",", "", 1), " ")
	if len(words) != WordCount {
		return nil, fmt.Errorf("%w: saying %q has %d words, want %d", ErrDataIntegrity, text, len(words), WordCount)
	}
	return words, nil
}

// Solver builds candidate puzzles from stored posts and sayings.
type Solver struct {
	store  store.Store
	alerts *alert.Manager
	now    func() time.Time
}

// NewSolver creates a solver. alerts may be nil.
func NewSolver(s store.Store, alerts *alert.Manager) *Solver {
	return &Solver{store: s, alerts: alerts, now: time.Now}
}

// FindSolution matches each word of text to the first post of dayIndex that
// contains it surrounded by spaces, never reusing a post. It returns nil
// when some word has no match.
func (s *Solver) FindSolution(ctx context.Context, text string, dayIndex int) ([]source.Post, error) {
	words, err := Words(text)
	if err != nil {
		return nil, err
	}

	found := make([]source.Post, 0, WordCount)
	claimed := make(map[string]bool, WordCount)
	for _, word := range words {
		candidates, err := s.store.FindPostsContaining(ctx, dayIndex, word)
		if err != nil {
			return nil, fmt.Errorf("find %q: %w", word, err)
		}
		for _, c := range candidates {
			if !claimed[c.ID] {
				claimed[c.ID] = true
				found = append(found, c)
				break
			}
		}
	}

	if len(found) != WordCount {
		return nil, nil
	}
	return found, nil
}

// Solve returns up to MaxPuzzles candidates for dayIndex, trying the least
// used sayings first and skipping any used within Cooldown.
func (s *Solver) Solve(ctx context.Context, dayIndex int) ([]store.Puzzle, error) {
	sayings, err := s.store.ListSayings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sayings: %w", err)
	}

	logger := log.WithFields(log.Fields{"job": "solve", "day": dayIndex})
	logger.WithField("sayings", len(sayings)).Info("solving")

	now := s.now()
	var puzzles []store.Puzzle
	for _, saying := range sayings {
		if len(puzzles) >= MaxPuzzles {
			break
		}
		if saying.LastUsage != nil && now.Sub(*saying.LastUsage) < Cooldown {
			continue
		}

		posts, err := s.FindSolution(ctx, saying.Text, dayIndex)
		if err != nil {
			entry := logger.WithFields(log.Fields{"saying": saying.Text, "error": err})
			if errors.Is(err, ErrDataIntegrity) {
				entry.Error("malformed saying")
			} else {
				entry.Warn("solution search failed")
			}
			continue
		}
		if posts == nil {
			logger.WithField("saying", saying.Text).Debug("no solution")
			continue
		}

		puzzles = append(puzzles, store.Puzzle{
			ID:         fmt.Sprintf("%d_%d", dayIndex, len(puzzles)),
			Text:       saying.Text,
			Tweet1:     posts[0].ID,
			Tweet2:     posts[1].ID,
			Tweet3:     posts[2].ID,
			Tweet4:     posts[3].ID,
			UsageCount: saying.UsageCount,
			DayIndex:   dayIndex,
		})
	}

	return puzzles, nil
}

// SolveAndWrite solves the current scrape day and replaces stale puzzles
// with the new candidates. It returns the number of candidates produced.
func (s *Solver) SolveAndWrite(ctx context.Context) (int, error) {
	dayIndex, ok, err := currentDay(ctx, s.store)
	if err != nil || !ok {
		return 0, err
	}

	puzzles, err := s.Solve(ctx, dayIndex)
	if err != nil {
		return 0, err
	}

	logger := log.WithFields(log.Fields{"job": "solve", "day": dayIndex})
	if len(puzzles) == 0 {
		logger.Info("no puzzles found")
		return 0, nil
	}

	if _, err := s.store.DeletePuzzlesBefore(ctx, dayIndex-1); err != nil {
		logger.WithError(err).Warn("delete previous puzzles failed")
	}

	outcome := "And the write operation succeeded"
	if err := s.store.InsertPuzzles(ctx, puzzles); err != nil {
		logger.WithError(err).Error("write puzzles failed")
		outcome = "However the write operation failed"
	}
	logger.WithField("puzzles", len(puzzles)).Info(outcome)
	s.alerts.Notify(ctx, "solve", fmt.Sprintf("Wrote %d puzzles for day %d. %s", len(puzzles), dayIndex, outcome))

	return len(puzzles), nil
}

// currentDay reads the day index from the scrape checkpoint. ok is false
// before the first scrape has run.
func currentDay(ctx context.Context, s store.Store) (int, bool, error) {
	progress, err := s.GetProgress(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("read progress: %w", err)
	}
	if progress == nil {
		log.Info("no day data found")
		return 0, false, nil
	}
	return progress.DayIndex, true, nil
}
