package puzzle

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/elonfeng/birdle/internal/store"
	"github.com/elonfeng/birdle/pkg/alert"
)

var (
	ErrNoProgress    = errors.New("no scrape progress yet")
	ErrNotFound      = errors.New("puzzle not found")
	ErrWrongDay      = errors.New("puzzle is not from the current day")
	ErrAlreadyPicked = errors.New("a puzzle is already picked for the current day")
)

// Picker marks one candidate per day as the daily puzzle.
type Picker struct {
	store  store.Store
	alerts *alert.Manager
	now    func() time.Time
}

// NewPicker creates a picker. alerts may be nil.
func NewPicker(s store.Store, alerts *alert.Manager) *Picker {
	return &Picker{store: s, alerts: alerts, now: time.Now}
}

// PickNext picks the least used unpicked candidate of the current day. It
// does nothing when the day already has a picked puzzle, so repeated runs
// are harmless. The returned puzzle is nil when nothing was picked.
func (p *Picker) PickNext(ctx context.Context) (*store.Puzzle, error) {
	dayIndex, ok, err := currentDay(ctx, p.store)
	if err != nil || !ok {
		return nil, err
	}
	logger := log.WithFields(log.Fields{"job": "pick", "day": dayIndex})

	picked, err := p.store.PickedPuzzle(ctx, dayIndex)
	if err != nil {
		return nil, err
	}
	if picked != nil {
		logger.WithField("puzzle", picked.ID).Info("already picked the day's puzzle")
		return nil, nil
	}

	next, err := p.store.NextUnpicked(ctx, dayIndex)
	if err != nil {
		return nil, err
	}
	if next == nil {
		logger.Warn("no puzzles found to pick")
		return nil, nil
	}

	p.pick(ctx, next, "automatically", logger)
	return next, nil
}

// PickByID is the manual override: it picks a specific candidate of the
// current day, provided none is picked yet.
func (p *Picker) PickByID(ctx context.Context, id string) (*store.Puzzle, error) {
	dayIndex, ok, err := currentDay(ctx, p.store)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoProgress
	}
	logger := log.WithFields(log.Fields{"job": "pick", "day": dayIndex})

	puzzle, err := p.store.GetPuzzle(ctx, id)
	if err != nil {
		return nil, err
	}
	if puzzle == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if puzzle.DayIndex != dayIndex {
		return nil, fmt.Errorf("%w: %s is day %d, current day is %d", ErrWrongDay, id, puzzle.DayIndex, dayIndex)
	}

	picked, err := p.store.PickedPuzzle(ctx, dayIndex)
	if err != nil {
		return nil, err
	}
	if picked != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPicked, picked.ID)
	}

	p.pick(ctx, puzzle, "manually", logger)
	return puzzle, nil
}

// pick persists the choice and rotates the saying. Write failures are
// logged and reported through the notifier only.
func (p *Picker) pick(ctx context.Context, puzzle *store.Puzzle, how string, logger *log.Entry) {
	now := p.now()
	logger = logger.WithField("puzzle", puzzle.ID)

	if err := p.store.MarkPicked(ctx, puzzle.ID, now); err != nil {
		logger.WithError(err).Error("mark picked failed")
		p.alerts.Notify(ctx, "pick", fmt.Sprintf("failed to pick puzzle %s", puzzle.ID))
		return
	}
	puzzle.Picked = true
	puzzle.PickedAt = &now
	logger.Info("picked puzzle")
	p.alerts.Notify(ctx, "pick", fmt.Sprintf("%s picked puzzle %s", how, puzzle.ID))

	saying, err := p.store.GetSaying(ctx, puzzle.Text)
	if err != nil {
		logger.WithError(err).Error("load picked saying failed")
		return
	}
	if saying == nil {
		logger.WithError(fmt.Errorf("%w: no saying for puzzle text %q", ErrDataIntegrity, puzzle.Text)).
			Error("could not update the picked saying")
		return
	}

	if err := p.store.MarkSayingUsed(ctx, saying.Text, now); err != nil {
		logger.WithError(err).Error("update picked saying failed")
		return
	}
	logger.WithField("saying", saying.Text).Info("updated the picked saying")
	p.alerts.Notify(ctx, "pick", fmt.Sprintf("updated saying %q (used %d times)", saying.Text, saying.UsageCount+1))
}
