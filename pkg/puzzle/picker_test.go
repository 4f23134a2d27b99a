package puzzle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elonfeng/birdle/internal/store"
)

func newTestPicker(s store.Store) *Picker {
	p := NewPicker(s, nil)
	p.now = func() time.Time { return testNow }
	return p
}

func seedCandidates(t *testing.T, s store.Store, day int) {
	t.Helper()
	ctx := context.Background()
	seedSayings(t, s, "see it believe it", "all is well here")
	if err := s.MarkSayingUsed(ctx, "all is well here", testNow.Add(-10*24*time.Hour)); err != nil {
		t.Fatalf("MarkSayingUsed: %v", err)
	}

	ids := seedPosts(t, s, day, "I see you there", "and it was fine", "I believe so", "take it easy")
	err := s.InsertPuzzles(ctx, []store.Puzzle{
		{ID: "x_0", Text: "all is well here", Tweet1: ids[0], Tweet2: ids[1], Tweet3: ids[2], Tweet4: ids[3], UsageCount: 1, DayIndex: day},
		{ID: "x_1", Text: "see it believe it", Tweet1: ids[0], Tweet2: ids[1], Tweet3: ids[2], Tweet4: ids[3], UsageCount: 0, DayIndex: day},
	})
	if err != nil {
		t.Fatalf("InsertPuzzles: %v", err)
	}
}

func TestPickNext(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	setDay(t, s, 7)
	seedCandidates(t, s, 7)

	picked, err := newTestPicker(s).PickNext(ctx)
	if err != nil {
		t.Fatalf("PickNext: %v", err)
	}
	if picked == nil || picked.ID != "x_1" {
		t.Fatalf("picked = %+v, want x_1 (least used)", picked)
	}

	stored, _ := s.PickedPuzzle(ctx, 7)
	if stored == nil || stored.ID != "x_1" || stored.PickedAt == nil || !stored.PickedAt.Equal(testNow) {
		t.Errorf("stored pick = %+v", stored)
	}

	saying, _ := s.GetSaying(ctx, "see it believe it")
	if saying.UsageCount != 1 || saying.LastUsage == nil || !saying.LastUsage.Equal(testNow) {
		t.Errorf("saying after pick = %+v", saying)
	}
}

func TestPickNextIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	setDay(t, s, 7)
	seedCandidates(t, s, 7)

	if _, err := newTestPicker(s).PickNext(ctx); err != nil {
		t.Fatalf("first PickNext: %v", err)
	}

	later := NewPicker(s, nil)
	later.now = func() time.Time { return testNow.Add(time.Hour) }
	again, err := later.PickNext(ctx)
	if err != nil {
		t.Fatalf("second PickNext: %v", err)
	}
	if again != nil {
		t.Errorf("second pick returned %+v", again)
	}

	saying, _ := s.GetSaying(ctx, "see it believe it")
	if saying.UsageCount != 1 || !saying.LastUsage.Equal(testNow) {
		t.Errorf("saying changed on second pick: %+v", saying)
	}
	other, _ := s.GetPuzzle(ctx, "x_0")
	if other.Picked {
		t.Error("second candidate was picked too")
	}
}

func TestPickNextWithoutCandidates(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	picked, err := newTestPicker(s).PickNext(ctx)
	if err != nil || picked != nil {
		t.Fatalf("PickNext without progress = %+v, %v", picked, err)
	}

	setDay(t, s, 2)
	picked, err = newTestPicker(s).PickNext(ctx)
	if err != nil || picked != nil {
		t.Fatalf("PickNext without puzzles = %+v, %v", picked, err)
	}
}

func TestPickNextMissingSaying(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	setDay(t, s, 1)

	if err := s.InsertPuzzles(ctx, []store.Puzzle{{ID: "1_0", Text: "orphan saying text here", DayIndex: 1}}); err != nil {
		t.Fatalf("InsertPuzzles: %v", err)
	}

	picked, err := newTestPicker(s).PickNext(ctx)
	if err != nil {
		t.Fatalf("PickNext: %v", err)
	}
	if picked == nil || !picked.Picked {
		t.Errorf("puzzle should still be picked: %+v", picked)
	}
}

func TestPickByID(t *testing.T) {
	ctx := context.Background()

	t.Run("no progress", func(t *testing.T) {
		s := setupTestStore(t)
		if _, err := newTestPicker(s).PickByID(ctx, "x_0"); !errors.Is(err, ErrNoProgress) {
			t.Errorf("err = %v, want ErrNoProgress", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		s := setupTestStore(t)
		setDay(t, s, 7)
		if _, err := newTestPicker(s).PickByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("wrong day", func(t *testing.T) {
		s := setupTestStore(t)
		seedCandidates(t, s, 6)
		setDay(t, s, 7)
		if _, err := newTestPicker(s).PickByID(ctx, "x_0"); !errors.Is(err, ErrWrongDay) {
			t.Errorf("err = %v, want ErrWrongDay", err)
		}
	})

	t.Run("manual pick overrides order", func(t *testing.T) {
		s := setupTestStore(t)
		setDay(t, s, 7)
		seedCandidates(t, s, 7)

		picked, err := newTestPicker(s).PickByID(ctx, "x_0")
		if err != nil {
			t.Fatalf("PickByID: %v", err)
		}
		if picked.ID != "x_0" || !picked.Picked {
			t.Errorf("picked = %+v", picked)
		}
		saying, _ := s.GetSaying(ctx, "all is well here")
		if saying.UsageCount != 2 {
			t.Errorf("usage = %d, want 2", saying.UsageCount)
		}

		if _, err := newTestPicker(s).PickByID(ctx, "x_1"); !errors.Is(err, ErrAlreadyPicked) {
			t.Errorf("second manual pick err = %v, want ErrAlreadyPicked", err)
		}
	})
}

func TestViews(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	setDay(t, s, 7)
	seedCandidates(t, s, 7)

	view, err := CurrentView(ctx, s)
	if err != nil || view != nil {
		t.Fatalf("CurrentView before pick = %+v, %v", view, err)
	}

	if _, err := newTestPicker(s).PickNext(ctx); err != nil {
		t.Fatalf("PickNext: %v", err)
	}

	view, err = CurrentView(ctx, s)
	if err != nil {
		t.Fatalf("CurrentView: %v", err)
	}
	if view.ID != "x_1" || view.DayIndex != 7 {
		t.Errorf("view = %+v", view)
	}
	if len(view.Words) != 4 || view.Words[2] != "believe" {
		t.Errorf("words = %v", view.Words)
	}
	if len(view.Posts) != 4 || view.Posts[2].Text != "I believe so" {
		t.Errorf("posts = %+v", view.Posts)
	}

	day, err := DayView(ctx, s, 7)
	if err != nil || day == nil || day.ID != "x_1" {
		t.Errorf("DayView(7) = %+v, %v", day, err)
	}
	if none, err := DayView(ctx, s, 6); err != nil || none != nil {
		t.Errorf("DayView(6) = %+v, %v", none, err)
	}
}

func TestLoadViewMissingPosts(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	p := &store.Puzzle{ID: "1_0", Text: "see it believe it", Tweet1: "a", Tweet2: "b", Tweet3: "c", Tweet4: "d", DayIndex: 1}
	if _, err := LoadView(ctx, s, p); !errors.Is(err, ErrDataIntegrity) {
		t.Errorf("err = %v, want ErrDataIntegrity", err)
	}
}
