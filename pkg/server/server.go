package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	log "github.com/sirupsen/logrus"

	"github.com/elonfeng/birdle/internal/store"
	"github.com/elonfeng/birdle/pkg/puzzle"
	"github.com/elonfeng/birdle/pkg/scrape"
)

// Server exposes the read side the game consumes plus a manual pick hook.
type Server struct {
	store   store.Store
	picker  *puzzle.Picker
	siteURL string
	port    int
}

// New creates a new HTTP server.
func New(s store.Store, picker *puzzle.Picker, siteURL string, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		store:   s,
		picker:  picker,
		siteURL: strings.TrimRight(siteURL, "/"),
		port:    port,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/puzzle/current", s.handleCurrentPuzzle)
	mux.HandleFunc("GET /api/v1/puzzle", s.handleDayPuzzle)
	mux.HandleFunc("GET /api/v1/puzzles", s.handleCandidates)
	mux.HandleFunc("POST /api/v1/puzzles/{id}/pick", s.handlePick)
	mux.HandleFunc("GET /api/v1/progress", s.handleProgress)
	mux.HandleFunc("GET /feed.xml", s.handleFeed)
	return mux
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.WithField("addr", addr).Info("birdle server listening")
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCurrentPuzzle(w http.ResponseWriter, r *http.Request) {
	view, err := puzzle.CurrentView(r.Context(), s.store)
	s.writeView(w, view, err)
}

func (s *Server) handleDayPuzzle(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("day must be an integer"))
		return
	}
	view, err := puzzle.DayView(r.Context(), s.store, day)
	s.writeView(w, view, err)
}

func (s *Server) writeView(w http.ResponseWriter, view *puzzle.View, err error) {
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if view == nil {
		writeError(w, http.StatusNotFound, errors.New("no puzzle picked"))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var day int
	if v := r.URL.Query().Get("day"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("day must be an integer"))
			return
		}
		day = d
	} else {
		progress, err := s.store.GetProgress(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if progress == nil {
			writeJSON(w, http.StatusOK, map[string]any{"data": []store.Puzzle{}, "count": 0})
			return
		}
		day = progress.DayIndex
	}

	puzzles, err := s.store.ListPuzzles(ctx, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  puzzles,
		"count": len(puzzles),
	})
}

func (s *Server) handlePick(w http.ResponseWriter, r *http.Request) {
	picked, err := s.picker.PickByID(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, puzzle.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, puzzle.ErrAlreadyPicked), errors.Is(err, puzzle.ErrWrongDay), errors.Is(err, puzzle.ErrNoProgress):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, picked)
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	row, err := s.store.GetProgress(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	state, err := scrape.Decode(row)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"phase":        state.Phase.String(),
		"day_index":    state.DayIndex,
		"batch_offset": state.Offset,
		"window_start": state.Window.Start,
		"window_end":   state.Window.End,
	})
}

// handleFeed publishes picked puzzles as RSS without revealing solutions.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	picked, err := s.store.ListPickedPuzzles(r.Context(), 30)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	feed := &feeds.Feed{
		Title:       "Birdle",
		Link:        &feeds.Link{Href: s.siteURL},
		Description: "A daily word puzzle hidden in four posts",
		Created:     time.Now().UTC(),
	}
	for _, p := range picked {
		created := time.Now().UTC()
		if p.PickedAt != nil {
			created = *p.PickedAt
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          p.ID,
			Title:       fmt.Sprintf("Birdle #%d", p.DayIndex),
			Link:        &feeds.Link{Href: fmt.Sprintf("%s/?day=%d", s.siteURL, p.DayIndex)},
			Description: "Four posts, four hidden words.",
			Created:     created,
		})
	}

	rss, err := feed.ToRss()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rss))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
