// Package scrape collects the day's posts for every tracked handle in
// resumable chunks.
//
// The checkpoint lives in a single store row. This file holds the pure
// transitions over that row; pipeline.go performs the I/O.
package scrape

import (
	"fmt"
	"strconv"
	"time"

	"github.com/elonfeng/birdle/internal/store"
	"github.com/elonfeng/birdle/pkg/source"
)

const (
	// ChunkSize is the number of handles searched together. Stored batch
	// offsets are counted in chunks of this size, so changing it
	// invalidates any in-flight checkpoint.
	ChunkSize = 10

	// WindowLookback and SettleDelay define the rolling window
	// [now-26h, now-2h]; the delay lets the upstream finish indexing.
	WindowLookback = 26 * time.Hour
	SettleDelay    = 2 * time.Hour

	// RolloverBuffer is how much validity a stored window must still have
	// for the cycle to stay on the same day.
	RolloverBuffer = 5 * time.Minute
)

// Phase is the lifecycle position of a scrape day.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseInProgress
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseInProgress:
		return "in_progress"
	case PhaseComplete:
		return "complete"
	}
	return "not_started"
}

// State is the decoded checkpoint.
type State struct {
	Phase    Phase
	DayIndex int
	Window   source.Window
	Offset   int
}

// Action is what a cycle has to do.
type Action int

const (
	// ActionIdle: the day is complete and its window is still fresh.
	ActionIdle Action = iota
	// ActionResume: keep scraping the stored day from its offset.
	ActionResume
	// ActionStartDay: begin a new day at offset 0 with a fresh window.
	ActionStartDay
)

func (a Action) String() string {
	switch a {
	case ActionResume:
		return "resume"
	case ActionStartDay:
		return "start_day"
	}
	return "idle"
}

// Plan is the outcome of Next.
type Plan struct {
	Action   Action
	DayIndex int
	Window   source.Window
	Offset   int
}

// CurrentWindow returns the rolling collection window for now.
func CurrentWindow(now time.Time) source.Window {
	return source.Window{
		Start: now.Add(-WindowLookback),
		End:   now.Add(-SettleDelay),
	}
}

// Next decides what the cycle starting at now should do.
func Next(s State, now time.Time) Plan {
	current := CurrentWindow(now)

	if s.Phase == PhaseNotStarted {
		return Plan{Action: ActionStartDay, DayIndex: 0, Window: current}
	}

	if s.Window.End.After(current.Start.Add(RolloverBuffer)) {
		if s.Phase == PhaseComplete {
			return Plan{Action: ActionIdle, DayIndex: s.DayIndex, Window: s.Window, Offset: s.Offset}
		}
		return Plan{Action: ActionResume, DayIndex: s.DayIndex, Window: s.Window, Offset: s.Offset}
	}

	return Plan{Action: ActionStartDay, DayIndex: s.DayIndex + 1, Window: current}
}

// Finish builds the checkpoint after a plan ran and reached offset out of
// total chunks. A resumed run that made no progress is marked complete so
// a persistently failing chunk cannot pin the day forever.
func Finish(p Plan, reached, total int) State {
	complete := reached >= total
	if p.Action == ActionResume && reached == p.Offset {
		complete = true
	}

	phase := PhaseInProgress
	if complete {
		phase = PhaseComplete
	}
	return State{Phase: phase, DayIndex: p.DayIndex, Window: p.Window, Offset: reached}
}

// Remaining returns how long the stored window stays valid at now.
func Remaining(s State, now time.Time) time.Duration {
	return s.Window.End.Sub(CurrentWindow(now).Start)
}

// Decode converts a stored row. A nil row is the not-started state.
func Decode(p *store.Progress) (State, error) {
	if p == nil {
		return State{Phase: PhaseNotStarted}, nil
	}

	start, err := parseMillis(p.StartTime)
	if err != nil {
		return State{}, fmt.Errorf("decode progress start_time: %w", err)
	}
	end, err := parseMillis(p.EndTime)
	if err != nil {
		return State{}, fmt.Errorf("decode progress end_time: %w", err)
	}

	phase := PhaseInProgress
	if p.IsComplete {
		phase = PhaseComplete
	}
	return State{
		Phase:    phase,
		DayIndex: p.DayIndex,
		Window:   source.Window{Start: start, End: end},
		Offset:   p.BatchOffset,
	}, nil
}

// Encode converts a state into its stored row.
func Encode(s State) *store.Progress {
	return &store.Progress{
		ID:          store.ProgressID,
		StartTime:   strconv.FormatInt(s.Window.Start.UnixMilli(), 10),
		EndTime:     strconv.FormatInt(s.Window.End.UnixMilli(), 10),
		BatchOffset: s.Offset,
		IsComplete:  s.Phase == PhaseComplete,
		DayIndex:    s.DayIndex,
	}
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Chunk splits items into consecutive groups of at most size.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		return nil
	}
	var chunks [][]T
	for i := 0; i < len(items); i += size {
		chunks = append(chunks, items[i:min(i+size, len(items))])
	}
	return chunks
}
