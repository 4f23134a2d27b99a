package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/birdle/pkg/source"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ProgressID is the key of the only scrape_data row.
const ProgressID = "metadata"

// Progress is the persisted scrape checkpoint. Window bounds are epoch
// milliseconds encoded as strings.
type Progress struct {
	ID          string `db:"id" json:"id"`
	StartTime   string `db:"start_time" json:"start_time"`
	EndTime     string `db:"end_time" json:"end_time"`
	BatchOffset int    `db:"batch_offset" json:"batch_offset"`
	IsComplete  bool   `db:"is_complete" json:"is_complete"`
	DayIndex    int    `db:"day_index" json:"day_index"`
}

// Saying is a four word phrase that may become a puzzle.
type Saying struct {
	Text       string     `db:"text" json:"text"`
	UsageCount int        `db:"usage_count" json:"usage_count"`
	LastUsage  *time.Time `db:"last_usage" json:"last_usage"`
}

// Puzzle is a saying matched against four posts of one day.
type Puzzle struct {
	ID         string     `db:"id" json:"id"`
	Text       string     `db:"text" json:"text"`
	Tweet1     string     `db:"tweet1" json:"tweet1"`
	Tweet2     string     `db:"tweet2" json:"tweet2"`
	Tweet3     string     `db:"tweet3" json:"tweet3"`
	Tweet4     string     `db:"tweet4" json:"tweet4"`
	UsageCount int        `db:"usage_count" json:"usage_count"`
	Picked     bool       `db:"picked" json:"picked"`
	PickedAt   *time.Time `db:"picked_at" json:"picked_at,omitempty"`
	DayIndex   int        `db:"day_index" json:"day_index"`
}

// TweetIDs returns the four post ids in word order.
func (p *Puzzle) TweetIDs() []string {
	return []string{p.Tweet1, p.Tweet2, p.Tweet3, p.Tweet4}
}

// Store is the persistence interface. Lookups of a single row return
// (nil, nil) when the row does not exist.
type Store interface {
	ListHandles(ctx context.Context) ([]string, error)
	AddHandles(ctx context.Context, handles ...string) (int, error)
	RemoveHandle(ctx context.Context, handle string) error

	InsertPosts(ctx context.Context, posts []source.Post) (int, error)
	DeletePostsBefore(ctx context.Context, dayIndex int) (int64, error)
	FindPostsContaining(ctx context.Context, dayIndex int, word string) ([]source.Post, error)
	GetPosts(ctx context.Context, dayIndex int, ids []string) ([]source.Post, error)
	CountPosts(ctx context.Context, dayIndex int) (int, error)

	GetProgress(ctx context.Context) (*Progress, error)
	UpsertProgress(ctx context.Context, p *Progress) error

	ListSayings(ctx context.Context) ([]Saying, error)
	GetSaying(ctx context.Context, text string) (*Saying, error)
	AddSayings(ctx context.Context, texts ...string) (int, error)
	MarkSayingUsed(ctx context.Context, text string, at time.Time) error

	InsertPuzzles(ctx context.Context, puzzles []Puzzle) error
	DeletePuzzlesBefore(ctx context.Context, dayIndex int) (int64, error)
	ListPuzzles(ctx context.Context, dayIndex int) ([]Puzzle, error)
	GetPuzzle(ctx context.Context, id string) (*Puzzle, error)
	PickedPuzzle(ctx context.Context, dayIndex int) (*Puzzle, error)
	NextUnpicked(ctx context.Context, dayIndex int) (*Puzzle, error)
	MarkPicked(ctx context.Context, id string, at time.Time) error
	CurrentPuzzle(ctx context.Context) (*Puzzle, error)
	ListPickedPuzzles(ctx context.Context, limit int) ([]Puzzle, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows one writer. Jobs and HTTP handlers share this pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListHandles returns handles in insertion order. Chunk offsets index into
// this order, so it must stay stable between runs.
func (s *SQLiteStore) ListHandles(ctx context.Context) ([]string, error) {
	var handles []string
	if err := s.db.SelectContext(ctx, &handles, "SELECT handle FROM handles ORDER BY rowid"); err != nil {
		return nil, fmt.Errorf("list handles: %w", err)
	}
	return handles, nil
}

func (s *SQLiteStore) AddHandles(ctx context.Context, handles ...string) (int, error) {
	added := 0
	for _, h := range handles {
		h = strings.TrimPrefix(strings.TrimSpace(h), "@")
		if h == "" {
			continue
		}
		res, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO handles (handle, created_at) VALUES (?, ?)", h, time.Now().UTC())
		if err != nil {
			return added, fmt.Errorf("add handle %s: %w", h, err)
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}
	return added, nil
}

func (s *SQLiteStore) RemoveHandle(ctx context.Context, handle string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM handles WHERE handle = ?", strings.TrimPrefix(handle, "@"))
	if err != nil {
		return fmt.Errorf("remove handle %s: %w", handle, err)
	}
	return nil
}

// InsertPosts writes posts in one transaction. A post already stored for
// the same day is left untouched, so a retried chunk is harmless.
func (s *SQLiteStore) InsertPosts(ctx context.Context, posts []source.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert posts: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for i := range posts {
		res, err := tx.NamedExecContext(ctx, `
			INSERT OR IGNORE INTO tweets (id, text, author, author_full, author_profile_url, likes, retweets, quotes, replies, day_index)
			VALUES (:id, :text, :author, :author_full, :author_profile_url, :likes, :retweets, :quotes, :replies, :day_index)
		`, &posts[i])
		if err != nil {
			return 0, fmt.Errorf("insert post %s: %w", posts[i].ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit posts: %w", err)
	}
	return inserted, nil
}

func (s *SQLiteStore) DeletePostsBefore(ctx context.Context, dayIndex int) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tweets WHERE day_index < ?", dayIndex)
	if err != nil {
		return 0, fmt.Errorf("delete posts before day %d: %w", dayIndex, err)
	}
	return res.RowsAffected()
}

// FindPostsContaining returns the day's posts whose text contains word with
// a space on both sides, case-insensitively, in insertion order. A word at
// the very start or end of a post never matches.
func (s *SQLiteStore) FindPostsContaining(ctx context.Context, dayIndex int, word string) ([]source.Post, error) {
	pattern := "% " + escapeLike(word) + " %"
	var posts []source.Post
	err := s.db.SelectContext(ctx, &posts,
		`SELECT * FROM tweets WHERE day_index = ? AND text LIKE ? ESCAPE '\' ORDER BY rowid`,
		dayIndex, pattern)
	if err != nil {
		return nil, fmt.Errorf("find posts containing %q: %w", word, err)
	}
	return posts, nil
}

// GetPosts returns the day's posts with the given ids, in the order of ids.
// Missing ids are skipped.
func (s *SQLiteStore) GetPosts(ctx context.Context, dayIndex int, ids []string) ([]source.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT * FROM tweets WHERE day_index = ? AND id IN (?)", dayIndex, ids)
	if err != nil {
		return nil, fmt.Errorf("build get posts: %w", err)
	}

	var rows []source.Post
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get posts: %w", err)
	}

	byID := make(map[string]source.Post, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	posts := make([]source.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

func (s *SQLiteStore) CountPosts(ctx context.Context, dayIndex int) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM tweets WHERE day_index = ?", dayIndex); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) GetProgress(ctx context.Context) (*Progress, error) {
	var p Progress
	err := s.db.GetContext(ctx, &p, "SELECT * FROM scrape_data WHERE id = ?", ProgressID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) UpsertProgress(ctx context.Context, p *Progress) error {
	p.ID = ProgressID
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO scrape_data (id, start_time, end_time, batch_offset, is_complete, day_index)
		VALUES (:id, :start_time, :end_time, :batch_offset, :is_complete, :day_index)
		ON CONFLICT(id) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			batch_offset = excluded.batch_offset,
			is_complete = excluded.is_complete,
			day_index = excluded.day_index
	`, p)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// ListSayings returns every saying, least used first.
func (s *SQLiteStore) ListSayings(ctx context.Context) ([]Saying, error) {
	var sayings []Saying
	if err := s.db.SelectContext(ctx, &sayings, "SELECT * FROM sayings ORDER BY usage_count ASC, rowid ASC"); err != nil {
		return nil, fmt.Errorf("list sayings: %w", err)
	}
	return sayings, nil
}

func (s *SQLiteStore) GetSaying(ctx context.Context, text string) (*Saying, error) {
	var saying Saying
	err := s.db.GetContext(ctx, &saying, "SELECT * FROM sayings WHERE text = ?", text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get saying %q: %w", text, err)
	}
	return &saying, nil
}

func (s *SQLiteStore) AddSayings(ctx context.Context, texts ...string) (int, error) {
	added := 0
	for _, t := range texts {
		t = strings.Join(strings.Fields(t), " ")
		if t == "" {
			continue
		}
		res, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO sayings (text, usage_count) VALUES (?, 0)", t)
		if err != nil {
			return added, fmt.Errorf("add saying %q: %w", t, err)
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}
	return added, nil
}

// MarkSayingUsed stamps last_usage and increments usage_count by one.
func (s *SQLiteStore) MarkSayingUsed(ctx context.Context, text string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sayings SET last_usage = ?, usage_count = usage_count + 1 WHERE text = ?",
		at.UTC(), text)
	if err != nil {
		return fmt.Errorf("mark saying used %q: %w", text, err)
	}
	return nil
}

// InsertPuzzles writes the whole batch or nothing.
func (s *SQLiteStore) InsertPuzzles(ctx context.Context, puzzles []Puzzle) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert puzzles: %w", err)
	}
	defer tx.Rollback()

	for i := range puzzles {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO puzzles (id, text, tweet1, tweet2, tweet3, tweet4, usage_count, picked, day_index)
			VALUES (:id, :text, :tweet1, :tweet2, :tweet3, :tweet4, :usage_count, :picked, :day_index)
		`, &puzzles[i])
		if err != nil {
			return fmt.Errorf("insert puzzle %s: %w", puzzles[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit puzzles: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeletePuzzlesBefore(ctx context.Context, dayIndex int) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM puzzles WHERE day_index < ?", dayIndex)
	if err != nil {
		return 0, fmt.Errorf("delete puzzles before day %d: %w", dayIndex, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) ListPuzzles(ctx context.Context, dayIndex int) ([]Puzzle, error) {
	var puzzles []Puzzle
	err := s.db.SelectContext(ctx, &puzzles,
		"SELECT * FROM puzzles WHERE day_index = ? ORDER BY usage_count ASC, rowid ASC", dayIndex)
	if err != nil {
		return nil, fmt.Errorf("list puzzles day %d: %w", dayIndex, err)
	}
	return puzzles, nil
}

func (s *SQLiteStore) GetPuzzle(ctx context.Context, id string) (*Puzzle, error) {
	return s.getPuzzle(ctx, "SELECT * FROM puzzles WHERE id = ?", id)
}

func (s *SQLiteStore) PickedPuzzle(ctx context.Context, dayIndex int) (*Puzzle, error) {
	return s.getPuzzle(ctx, "SELECT * FROM puzzles WHERE day_index = ? AND picked = 1 LIMIT 1", dayIndex)
}

// NextUnpicked returns the day's least used unpicked puzzle, ties broken by
// insertion order.
func (s *SQLiteStore) NextUnpicked(ctx context.Context, dayIndex int) (*Puzzle, error) {
	return s.getPuzzle(ctx,
		"SELECT * FROM puzzles WHERE day_index = ? AND picked = 0 ORDER BY usage_count ASC, rowid ASC LIMIT 1",
		dayIndex)
}

func (s *SQLiteStore) MarkPicked(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE puzzles SET picked = 1, picked_at = ? WHERE id = ?", at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark picked %s: %w", id, err)
	}
	return nil
}

// CurrentPuzzle returns the picked puzzle of the latest day that has one.
func (s *SQLiteStore) CurrentPuzzle(ctx context.Context) (*Puzzle, error) {
	return s.getPuzzle(ctx, "SELECT * FROM current_puzzle LIMIT 1")
}

func (s *SQLiteStore) ListPickedPuzzles(ctx context.Context, limit int) ([]Puzzle, error) {
	if limit <= 0 {
		limit = 30
	}
	var puzzles []Puzzle
	err := s.db.SelectContext(ctx, &puzzles,
		"SELECT * FROM puzzles WHERE picked = 1 ORDER BY day_index DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list picked puzzles: %w", err)
	}
	return puzzles, nil
}

func (s *SQLiteStore) getPuzzle(ctx context.Context, query string, args ...any) (*Puzzle, error) {
	var p Puzzle
	err := s.db.GetContext(ctx, &p, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get puzzle: %w", err)
	}
	return &p, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
