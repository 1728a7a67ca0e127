package refresh

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/minimum2scp/geco/internal/cache"
	"github.com/minimum2scp/geco/internal/inventory"
	"github.com/minimum2scp/geco/internal/logging"
)

// DefaultMaxConcurrency bounds parallel instance listings.
const DefaultMaxConcurrency = 10

// EventKind distinguishes progress events.
type EventKind int

// Progress event kinds.
const (
	EventStarted EventKind = iota
	EventFinished
	EventFailed
)

// Event is sent by a worker to the progress consumer.
type Event struct {
	Kind      EventKind
	Project   inventory.Project
	Instances int
	Err       error
}

// ProjectFailure records a project whose instances could not be loaded.
type ProjectFailure struct {
	Project inventory.Project
	Err     error
}

// Report summarizes a refresh.
type Report struct {
	Projects  int
	Instances int
	Failures  []ProjectFailure
	Elapsed   time.Duration
}

// Refresher force-reloads all projects and their instances.
type Refresher struct {
	loader         *inventory.Loader
	out            io.Writer
	maxConcurrency int
	onEvent        func(Event)
}

// NewRefresher creates a Refresher writing progress lines to out.
// maxConcurrency below 1 selects DefaultMaxConcurrency.
func NewRefresher(loader *inventory.Loader, out io.Writer, maxConcurrency int) *Refresher {
	if maxConcurrency < 1 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if out == nil {
		out = io.Discard
	}
	return &Refresher{
		loader:         loader,
		out:            out,
		maxConcurrency: maxConcurrency,
	}
}

// WithEventCallback registers fn to observe every event, in consumption order.
func (r *Refresher) WithEventCallback(fn func(Event)) *Refresher {
	r.onEvent = fn
	return r
}

// Run refreshes the cache inside tx. A project list failure aborts the run;
// instance failures are reported in Report.Failures. All workers have
// finished when Run returns.
func (r *Refresher) Run(ctx context.Context, tx *cache.Tx) (*Report, error) {
	log := logging.FromContext(ctx)

	_, _ = fmt.Fprintln(r.out, "loading projects...")
	projects, err := r.loader.Projects(ctx, tx, true)
	if err != nil {
		return nil, err
	}
	_, _ = fmt.Fprintf(r.out, "found %d projects.\n", len(projects))

	progress := NewProgress(len(projects))
	report := &Report{Projects: len(projects)}

	events := make(chan Event)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for ev := range events {
			r.consume(ctx, ev, progress, report)
		}
	}()

	var g errgroup.Group
	g.SetLimit(r.maxConcurrency)
	for _, project := range projects {
		g.Go(func() error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				events <- Event{Kind: EventFailed, Project: project, Err: ctxErr}
				return nil
			}

			events <- Event{Kind: EventStarted, Project: project}
			instances, loadErr := r.loader.Instances(ctx, tx, true, project.ID)
			if loadErr != nil {
				events <- Event{Kind: EventFailed, Project: project, Err: loadErr}
				return nil
			}
			events <- Event{Kind: EventFinished, Project: project, Instances: len(instances)}
			return nil
		})
	}
	_ = g.Wait()
	close(events)
	<-consumed

	snap := progress.Snapshot()
	report.Instances = snap.Instances
	report.Elapsed = snap.ElapsedTime

	_, _ = fmt.Fprintf(r.out, "cached %d vm instances in %d projects (%d failed) in %s.\n",
		snap.Instances, snap.Done, snap.Failed, snap.ElapsedTime.Round(time.Millisecond))

	log.Info().
		Str("component", "refresh").
		Int("projects", report.Projects).
		Int("instances", report.Instances).
		Int("failures", len(report.Failures)).
		Dur("elapsed", report.Elapsed).
		Msg("cache refresh finished")

	return report, ctx.Err()
}

// consume runs on the single consumer goroutine only.
func (r *Refresher) consume(ctx context.Context, ev Event, progress *Progress, report *Report) {
	p := ev.Project
	switch ev.Kind {
	case EventStarted:
		_, _ = fmt.Fprintf(r.out, "loading project: %s (%s)\n", p.Name, p.ID)
	case EventFinished:
		progress.AddDone(ev.Instances)
		_, _ = fmt.Fprintf(r.out, "loaded project: %s (%s), found %d vm instances\n", p.Name, p.ID, ev.Instances)
		logging.FromContext(ctx).Debug().
			Str("component", "refresh").
			Str("project", p.ID).
			Int("instances", ev.Instances).
			Float64("percent_complete", progress.PercentComplete()).
			Msg("project refreshed")
	case EventFailed:
		progress.AddFailed()
		report.Failures = append(report.Failures, ProjectFailure{Project: p, Err: ev.Err})
		_, _ = fmt.Fprintf(r.out, "failed project: %s (%s): %v\n", p.Name, p.ID, ev.Err)
		logging.FromContext(ctx).Warn().
			Str("component", "refresh").
			Str("project", p.ID).
			Err(ev.Err).
			Float64("percent_complete", progress.PercentComplete()).
			Msg("instance refresh failed, continuing")
	}

	if r.onEvent != nil {
		r.onEvent(ev)
	}
}
