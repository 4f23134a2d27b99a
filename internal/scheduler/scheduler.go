package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron specs in a fixed timezone. Every run gets its
// own deadline, mirroring the hosting ceiling the jobs are designed for.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	jobs    map[string][]cron.EntryID
}

// New creates a scheduler for timezone with a per-run timeout.
func New(timezone string, timeout time.Duration) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}
	if timeout <= 0 {
		timeout = 9 * time.Minute
	}

	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		timeout: timeout,
		jobs:    make(map[string][]cron.EntryID),
	}, nil
}

// AddJob registers job under name at a standard five-field cron spec.
// The same name may be registered at several specs.
func (s *Scheduler) AddJob(name, spec string, job Job) error {
	id, err := s.cron.AddFunc(spec, func() {
		_ = s.RunNow(context.Background(), name, job)
	})
	if err != nil {
		return fmt.Errorf("schedule job %s (%s): %w", name, spec, err)
	}
	s.jobs[name] = append(s.jobs[name], id)
	log.WithFields(log.Fields{"job": name, "schedule": spec}).Info("scheduler: added job")
	return nil
}

// RunNow executes job immediately under the scheduler's timeout.
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger := log.WithFields(log.Fields{"job": name, "run_id": uuid.NewString()})
	logger.Info("scheduler: starting job")
	start := time.Now()

	if err := job(ctx); err != nil {
		logger.WithError(err).Error("scheduler: job failed")
		return err
	}
	logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("scheduler: job completed")
	return nil
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits
// for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	log.Info("scheduler: running")

	<-ctx.Done()
	log.Info("scheduler: stopping")
	<-s.cron.Stop().Done()
	return ctx.Err()
}

// JobInfo describes the next firing of a registered job.
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// ListJobs returns one entry per registered spec, soonest first. Before Run
// starts the cron loop, NextRun is computed from the spec.
func (s *Scheduler) ListJobs() []JobInfo {
	now := time.Now().In(s.cron.Location())
	var infos []JobInfo
	for name, ids := range s.jobs {
		for _, id := range ids {
			e := s.cron.Entry(id)
			next := e.Next
			if next.IsZero() && e.Schedule != nil {
				next = e.Schedule.Next(now)
			}
			infos = append(infos, JobInfo{Name: name, NextRun: next, LastRun: e.Prev})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].NextRun.Before(infos[j].NextRun) })
	return infos
}
