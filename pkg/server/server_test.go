package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elonfeng/birdle/internal/store"
	"github.com/elonfeng/birdle/pkg/puzzle"
	"github.com/elonfeng/birdle/pkg/source"
)

func setupTestServer(t *testing.T) (*store.SQLiteStore, http.Handler) {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, New(db, puzzle.NewPicker(db, nil), "https://birdle.test/", 0).Handler()
}

func seedDay(t *testing.T, db store.Store, day int) {
	t.Helper()
	ctx := context.Background()

	if err := db.UpsertProgress(ctx, &store.Progress{StartTime: "1000", EndTime: "2000", DayIndex: day, BatchOffset: 2}); err != nil {
		t.Fatalf("UpsertProgress: %v", err)
	}
	posts := []source.Post{
		{ID: "p1", Text: "I see you there", Author: "a", DayIndex: day},
		{ID: "p2", Text: "and it was fine", Author: "b", DayIndex: day},
		{ID: "p3", Text: "I believe so", Author: "c", DayIndex: day},
		{ID: "p4", Text: "take it easy", Author: "d", DayIndex: day},
	}
	if _, err := db.InsertPosts(ctx, posts); err != nil {
		t.Fatalf("InsertPosts: %v", err)
	}
	if _, err := db.AddSayings(ctx, "see it believe it"); err != nil {
		t.Fatalf("AddSayings: %v", err)
	}
	err := db.InsertPuzzles(ctx, []store.Puzzle{
		{ID: "9_0", Text: "see it believe it", Tweet1: "p1", Tweet2: "p2", Tweet3: "p3", Tweet4: "p4", DayIndex: day},
	})
	if err != nil {
		t.Fatalf("InsertPuzzles: %v", err)
	}
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, h := setupTestServer(t)
	rec := do(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestCurrentPuzzleLifecycle(t *testing.T) {
	db, h := setupTestServer(t)
	seedDay(t, db, 9)

	if rec := do(t, h, http.MethodGet, "/api/v1/puzzle/current"); rec.Code != http.StatusNotFound {
		t.Errorf("before pick = %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/v1/puzzles")
	var list struct {
		Data  []store.Puzzle `json:"data"`
		Count int            `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode candidates: %v", err)
	}
	if list.Count != 1 || list.Data[0].ID != "9_0" {
		t.Errorf("candidates = %+v", list)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/puzzles/9_0/pick")
	if rec.Code != http.StatusOK {
		t.Fatalf("pick = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/puzzles/9_0/pick"); rec.Code != http.StatusConflict {
		t.Errorf("second pick = %d, want 409", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/puzzles/nope/pick"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown pick = %d, want 404", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/puzzle/current")
	if rec.Code != http.StatusOK {
		t.Fatalf("current = %d %s", rec.Code, rec.Body.String())
	}
	var view puzzle.View
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.ID != "9_0" || len(view.Posts) != 4 || view.Words[0] != "see" || view.Posts[3].ID != "p4" {
		t.Errorf("view = %+v", view)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/puzzle?day=9"); rec.Code != http.StatusOK {
		t.Errorf("day 9 = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/puzzle?day=8"); rec.Code != http.StatusNotFound {
		t.Errorf("day 8 = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/puzzle?day=x"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad day = %d, want 400", rec.Code)
	}
}

func TestProgress(t *testing.T) {
	db, h := setupTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/v1/progress")
	if !strings.Contains(rec.Body.String(), `"phase":"not_started"`) {
		t.Errorf("empty progress = %s", rec.Body.String())
	}

	seedDay(t, db, 9)
	rec = do(t, h, http.MethodGet, "/api/v1/progress")
	var got map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["phase"] != "in_progress" || got["day_index"] != float64(9) || got["batch_offset"] != float64(2) {
		t.Errorf("progress = %v", got)
	}
}

func TestFeedHidesSolutions(t *testing.T) {
	db, h := setupTestServer(t)
	seedDay(t, db, 9)
	if rec := do(t, h, http.MethodPost, "/api/v1/puzzles/9_0/pick"); rec.Code != http.StatusOK {
		t.Fatalf("pick = %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/feed.xml")
	if rec.Code != http.StatusOK {
		t.Fatalf("feed = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Birdle #9") || !strings.Contains(body, "https://birdle.test/?day=9") {
		t.Errorf("feed missing item: %s", body)
	}
	if strings.Contains(body, "believe") {
		t.Error("feed leaks the solution")
	}
}
