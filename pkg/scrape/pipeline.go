package scrape

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/birdle/internal/store"
	"github.com/elonfeng/birdle/pkg/alert"
	"github.com/elonfeng/birdle/pkg/source"
)

const jobName = "scrape"

// checkpointTimeout bounds the progress write, which must happen even when
// the job context has already expired.
const checkpointTimeout = 30 * time.Second

// Pipeline runs scrape cycles against a store and a post source.
type Pipeline struct {
	store    store.Store
	searcher source.Searcher
	filter   *source.Filter
	alerts   *alert.Manager
	now      func() time.Time
}

// New creates a scrape pipeline. alerts may be nil.
func New(s store.Store, searcher source.Searcher, filter *source.Filter, alerts *alert.Manager) *Pipeline {
	if filter == nil {
		filter = source.NewFilter(nil)
	}
	return &Pipeline{
		store:    s,
		searcher: searcher,
		filter:   filter,
		alerts:   alerts,
		now:      time.Now,
	}
}

// Result summarizes one cycle. FailedWrites counts chunks whose posts could
// not be stored; those chunks still count as scraped.
type Result struct {
	Plan         Plan
	State        State
	TotalChunks  int
	Inserted     int
	RateLimited  bool
	FailedWrites int
}

// RunCycle advances the scrape by as many chunks as the source allows and
// checkpoints the result. It is safe to call on any schedule: a complete
// day with a fresh window is a no-op.
func (p *Pipeline) RunCycle(ctx context.Context) (*Result, error) {
	row, err := p.store.GetProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	prev, err := Decode(row)
	if err != nil {
		return nil, err
	}

	now := p.now()
	plan := Next(prev, now)
	logger := log.WithFields(log.Fields{
		"job":    jobName,
		"action": plan.Action.String(),
		"day":    plan.DayIndex,
		"offset": plan.Offset,
	})

	if plan.Action == ActionIdle {
		logger.WithField("hours_remaining", int(Remaining(prev, now).Hours())).
			Info("too early and scraping is already complete")
		return &Result{Plan: plan, State: prev}, nil
	}

	res, err := p.collect(ctx, plan, logger)
	if err != nil {
		return nil, err
	}

	res.State = Finish(plan, res.State.Offset, res.TotalChunks)
	if plan.Action == ActionResume && res.State.Offset == plan.Offset {
		logger.Warn("batch offset did not advance, marking day complete")
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointTimeout)
	defer cancel()
	if err := p.store.UpsertProgress(wctx, Encode(res.State)); err != nil {
		logger.WithError(err).Error("checkpoint write failed")
		p.alerts.Notify(wctx, jobName, fmt.Sprintf("Day %d: checkpoint write failed at chunk %d", plan.DayIndex, res.State.Offset))
		return res, nil
	}

	logger.WithFields(log.Fields{
		"reached":  res.State.Offset,
		"total":    res.TotalChunks,
		"inserted": res.Inserted,
		"failed":   res.FailedWrites,
		"complete": res.State.Phase == PhaseComplete,
	}).Info("scraped up until batch offset")
	p.alerts.Notify(wctx, jobName, fmt.Sprintf("Day %d: scraped up to chunk %d of %d (%d posts)%s%s",
		plan.DayIndex, res.State.Offset, res.TotalChunks, res.Inserted, failedSuffix(res.FailedWrites), completeSuffix(res.State)))

	return res, nil
}

// collect runs the chunk loop for plan. The returned Result carries the
// offset reached in State.Offset; Finish decides completeness.
func (p *Pipeline) collect(ctx context.Context, plan Plan, logger *log.Entry) (*Result, error) {
	res := &Result{Plan: plan}

	if n, err := p.store.DeletePostsBefore(ctx, plan.DayIndex-1); err != nil {
		logger.WithError(err).Warn("delete previous posts failed")
	} else if n > 0 {
		logger.WithField("deleted", n).Info("deleted stale posts")
	}

	handles, err := p.store.ListHandles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list handles: %w", err)
	}
	chunks := Chunk(handles, ChunkSize)
	res.TotalChunks = len(chunks)

	p.alerts.Notify(ctx, jobName, fmt.Sprintf("Day %d: scraping %d chunks starting from %d", plan.DayIndex, len(chunks), plan.Offset))

	offset := plan.Offset
	for offset < len(chunks) {
		posts, limited := p.fetchChunk(ctx, chunks[offset], plan, logger.WithField("chunk", offset))
		if limited {
			res.RateLimited = true
			logger.WithField("chunk", offset).Warn("rate limited, bailing out")
			break
		}
		if ctx.Err() != nil {
			logger.WithField("chunk", offset).WithError(ctx.Err()).Warn("deadline reached, bailing out")
			break
		}

		n, err := p.store.InsertPosts(ctx, posts)
		if err != nil {
			logger.WithField("chunk", offset).WithError(err).Error("write chunk failed")
			res.FailedWrites++
		} else {
			res.Inserted += n
		}
		offset++
	}

	res.State.Offset = offset
	return res, nil
}

type handleResult struct {
	posts []source.Post
	err   error
}

// fetchChunk searches every handle of a chunk concurrently and waits for all
// of them. It reports limited when any handle hit the rate limit, in which
// case the chunk's posts must not be written.
func (p *Pipeline) fetchChunk(ctx context.Context, handles []string, plan Plan, logger *log.Entry) ([]source.Post, bool) {
	results := make([]handleResult, len(handles))

	var g errgroup.Group
	for i, handle := range handles {
		g.Go(func() error {
			posts, err := p.searcher.Search(ctx, handle, plan.Window)
			results[i] = handleResult{posts: posts, err: err}
			return err
		})
	}
	// A bare Group does not cancel siblings, so Wait still returns only after
	// every handle finished. Per-handle errors are classified below.
	if err := g.Wait(); err != nil {
		logger.WithError(err).Debug("chunk had failed searches")
	}

	var (
		posts   []source.Post
		limited bool
	)
	for i, r := range results {
		if r.err != nil {
			entry := logger.WithFields(log.Fields{"handle": handles[i], "error": r.err})
			switch source.KindOf(r.err) {
			case source.KindRateLimited:
				limited = true
			case source.KindDataIntegrity:
				entry.Error("malformed search response")
			default:
				entry.Warn("search failed")
			}
			continue
		}
		for _, post := range p.filter.Apply(r.posts) {
			post.DayIndex = plan.DayIndex
			posts = append(posts, post)
		}
	}
	return posts, limited
}

func failedSuffix(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(", %d chunk writes failed", n)
}

func completeSuffix(s State) string {
	if s.Phase == PhaseComplete {
		return ", complete"
	}
	return ""
}
