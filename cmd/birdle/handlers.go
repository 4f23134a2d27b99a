package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/elonfeng/birdle/internal/config"
	"github.com/elonfeng/birdle/internal/scheduler"
	"github.com/elonfeng/birdle/internal/store"
	"github.com/elonfeng/birdle/pkg/alert"
	"github.com/elonfeng/birdle/pkg/puzzle"
	"github.com/elonfeng/birdle/pkg/scrape"
	"github.com/elonfeng/birdle/pkg/server"
	"github.com/elonfeng/birdle/pkg/source"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
}

// openStore loads config and opens the database.
func openStore() (*config.Config, *store.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, db, nil
}

func buildSearcher(cfg *config.Config) source.Searcher {
	if cfg.Source.Provider == "nitter" {
		return source.NewNitter(cfg.Source.Nitter.URL)
	}
	return source.NewTwitter(cfg.Source.Twitter.BaseURL, cfg.Source.Twitter.BearerToken)
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if s := cfg.Alerts.SMS; s.Enabled {
		notifiers = append(notifiers, alert.NewSMS(s.AccountSID, s.Token, s.From, s.To))
	}
	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

// jobs wires the three scheduled jobs over one store.
type jobs struct {
	pipeline *scrape.Pipeline
	solver   *puzzle.Solver
	picker   *puzzle.Picker
}

func buildJobs(cfg *config.Config, db store.Store) *jobs {
	alerts := buildAlertManager(cfg)
	filter := source.NewFilter(cfg.Filter.ExcludeKeywords)
	return &jobs{
		pipeline: scrape.New(db, buildSearcher(cfg), filter, alerts),
		solver:   puzzle.NewSolver(db, alerts),
		picker:   puzzle.NewPicker(db, alerts),
	}
}

func (j *jobs) scrape(ctx context.Context) error {
	_, err := j.pipeline.RunCycle(ctx)
	return err
}

func (j *jobs) solve(ctx context.Context) error {
	_, err := j.solver.SolveAndWrite(ctx)
	return err
}

func (j *jobs) pick(ctx context.Context) error {
	_, err := j.picker.PickNext(ctx)
	return err
}

func newScheduler(cfg *config.Config) (*scheduler.Scheduler, error) {
	return scheduler.New(cfg.Schedule.Timezone, cfg.Schedule.ParseJobTimeout())
}

func runScrape() error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	sched, err := newScheduler(cfg)
	if err != nil {
		return err
	}
	return sched.RunNow(context.Background(), "scrape", buildJobs(cfg, db).scrape)
}

func runSolve() error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	sched, err := newScheduler(cfg)
	if err != nil {
		return err
	}
	return sched.RunNow(context.Background(), "solve", buildJobs(cfg, db).solve)
}

func runPick(id string) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	j := buildJobs(cfg, db)
	if id == "" {
		sched, err := newScheduler(cfg)
		if err != nil {
			return err
		}
		return sched.RunNow(context.Background(), "pick", j.pick)
	}

	picked, err := j.picker.PickByID(context.Background(), id)
	if err != nil {
		return err
	}
	fmt.Printf("picked %s: %s\n", picked.ID, picked.Text)
	return nil
}

func runStatus() error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	row, err := db.GetProgress(ctx)
	if err != nil {
		return err
	}
	state, err := scrape.Decode(row)
	if err != nil {
		return err
	}

	if state.Phase == scrape.PhaseNotStarted {
		color.Yellow("no scrape has run yet (try: birdle scrape)")
		return nil
	}

	phase := color.YellowString(state.Phase.String())
	if state.Phase == scrape.PhaseComplete {
		phase = color.GreenString(state.Phase.String())
	}
	posts, err := db.CountPosts(ctx, state.DayIndex)
	if err != nil {
		return err
	}
	fmt.Printf("day %d  %s  offset %d  posts %d\n", state.DayIndex, phase, state.Offset, posts)
	fmt.Printf("window %s -> %s\n", state.Window.Start.Format(time.RFC3339), state.Window.End.Format(time.RFC3339))

	puzzles, err := db.ListPuzzles(ctx, state.DayIndex)
	if err != nil {
		return err
	}
	if len(puzzles) == 0 {
		fmt.Println("no candidates yet (try: birdle solve)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tUSAGE\tPICKED\tSAYING")
	for _, p := range puzzles {
		picked := ""
		if p.Picked {
			picked = color.GreenString("yes")
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", p.ID, p.UsageCount, picked, p.Text)
	}
	return w.Flush()
}

func runServe(port int) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if port == 0 {
		port = cfg.Server.Port
	}

	srv := server.New(db, buildJobs(cfg, db).picker, cfg.Server.SiteURL, port)
	return srv.ListenAndServe()
}

func runDaemon(port int) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if port == 0 {
		port = cfg.Server.Port
	}

	j := buildJobs(cfg, db)
	sched, err := newScheduler(cfg)
	if err != nil {
		return err
	}
	for _, spec := range cfg.Schedule.Scrape {
		if err := sched.AddJob("scrape", spec, j.scrape); err != nil {
			return err
		}
	}
	if err := sched.AddJob("solve", cfg.Schedule.Solve, j.solve); err != nil {
		return err
	}
	if err := sched.AddJob("pick", cfg.Schedule.Pick, j.pick); err != nil {
		return err
	}
	for _, info := range sched.ListJobs() {
		log.WithFields(log.Fields{"job": info.Name, "next_run": info.NextRun.Format(time.RFC3339)}).Info("job scheduled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("scheduler error")
		}
	}()

	srv := server.New(db, j.picker, cfg.Server.SiteURL, port)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	}
}

func runHandlesAdd(handles []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.AddHandles(context.Background(), handles...)
	if err != nil {
		return err
	}
	fmt.Printf("added %d handles\n", n)
	return nil
}

func runHandlesRemove(handle string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	return db.RemoveHandle(context.Background(), handle)
}

func runHandlesList() error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	handles, err := db.ListHandles(context.Background())
	if err != nil {
		return err
	}
	chunks := scrape.Chunk(handles, scrape.ChunkSize)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHUNK\tHANDLES")
	for i, c := range chunks {
		fmt.Fprintf(w, "%d\t%s\n", i, strings.Join(c, ", "))
	}
	return w.Flush()
}

func runSayingsAdd(texts []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	return addSayings(db, texts)
}

func runSayingsImport(path string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open sayings file: %w", err)
	}
	defer f.Close()

	var texts []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			texts = append(texts, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read sayings file: %w", err)
	}
	return addSayings(db, texts)
}

// addSayings rejects malformed sayings up front so the solver never sees them.
func addSayings(db store.Store, texts []string) error {
	var valid []string
	var errs []error
	for _, t := range texts {
		t = strings.Join(strings.Fields(t), " ")
		if _, err := puzzle.Words(t); err != nil {
			errs = append(errs, err)
			continue
		}
		valid = append(valid, t)
	}

	n, err := db.AddSayings(context.Background(), valid...)
	if err != nil {
		return err
	}
	fmt.Printf("added %d sayings\n", n)
	return errors.Join(errs...)
}

func runSayingsList() error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	sayings, err := db.ListSayings(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USAGE\tLAST USED\tSAYING")
	for _, s := range sayings {
		last := "-"
		if s.LastUsage != nil {
			last = s.LastUsage.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.UsageCount, last, s.Text)
	}
	return w.Flush()
}
