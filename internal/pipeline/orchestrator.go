// Package pipeline turns input paths into artifacts: cache first, then one
// deduplicated backend job per fingerprint, then a cache insert.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/backend"
	"github.com/joseph-ayodele/docparse/internal/cache"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/entity"
	"github.com/joseph-ayodele/docparse/internal/fingerprint"
	"github.com/joseph-ayodele/docparse/internal/ingest"
	"github.com/joseph-ayodele/docparse/internal/job"
	"github.com/joseph-ayodele/docparse/internal/scheduler"
)

const (
	// defaultFanOut bounds how many documents are loaded and waiting at once.
	defaultFanOut = 32
	// maxFlightRetries bounds re-joins after a shared flight was cancelled by its leader.
	maxFlightRetries = 3
)

// outcome is what a flight hands to every caller sharing it.
type outcome struct {
	artifact *entity.Artifact
	attempts int
	cached   bool
	warning  string
}

// Orchestrator parses documents against a single backend.
type Orchestrator struct {
	Logger *slog.Logger

	backend      backend.Backend
	store        cache.Store
	rt           backend.Runtime
	sched        *scheduler.Scheduler
	runner       *job.Runner
	loader       *ingest.Loader
	flight       cache.Flight[outcome]
	clock        job.Clock
	guard        *breaker
	skipReadable bool
	fanOut       int
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.Logger = l
		}
	}
}

func WithScheduler(s *scheduler.Scheduler) Option {
	return func(o *Orchestrator) { o.sched = s }
}

func WithLoader(l *ingest.Loader) Option {
	return func(o *Orchestrator) { o.loader = l }
}

func WithClock(c job.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithSkipReadable passes plain text and markdown inputs through untouched.
func WithSkipReadable(skip bool) Option {
	return func(o *Orchestrator) { o.skipReadable = skip }
}

// WithFanOut bounds the number of documents held in memory by Parse.
func WithFanOut(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.fanOut = n
		}
	}
}

func New(b backend.Backend, store cache.Store, rt backend.Runtime, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		Logger:  slog.Default(),
		backend: b,
		store:   store,
		rt:      rt,
		fanOut:  defaultFanOut,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sched == nil {
		o.sched = NewScheduler(rt, o.Logger)
	}
	if o.loader == nil {
		o.loader = ingest.NewLoader(o.Logger)
	}
	o.guard = newBreaker(b, o.Logger)
	o.runner = job.NewRunner(o.guard, o.sched, rt, job.WithClock(o.clock), job.WithLogger(o.Logger))
	return o
}

// NewScheduler builds the scheduler a backend's runtime settings ask for.
func NewScheduler(rt backend.Runtime, logger *slog.Logger, opts ...scheduler.Option) *scheduler.Scheduler {
	base := []scheduler.Option{
		scheduler.WithMaxAttempts(rt.MaxRetries + 1),
		scheduler.WithBackoff(rt.RetryBaseDelay, 0),
		scheduler.WithRateLimit(rt.RequestsPerSecond),
		scheduler.WithLogger(logger),
	}
	return scheduler.New(rt.MaxConcurrency, append(base, opts...)...)
}

func (o *Orchestrator) Backend() backend.Backend { return o.backend }

func (o *Orchestrator) Scheduler() *scheduler.Scheduler { return o.sched }

// Preflight runs the backend's availability check when it has one.
func (o *Orchestrator) Preflight(ctx context.Context) error {
	c, ok := o.backend.(backend.Checker)
	if !ok {
		return nil
	}
	if err := c.Check(ctx); err != nil {
		je := common.AsJobError(err)
		return &common.JobError{Kind: je.Kind, Backend: o.backend.ID(), Err: fmt.Errorf("preflight: %w", err)}
	}
	return nil
}

// Parse runs every path and returns one result per path, in the order given.
// With AbortOnError the first failed or timed out document cancels the rest; their
// results carry CANCELLED.
func (o *Orchestrator) Parse(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanOut)

	start := time.Now()
	for i, p := range paths {
		if gctx.Err() != nil {
			results[i] = o.cancelled(gctx, p)
			continue
		}
		g.Go(func() error {
			res := o.ParseOne(gctx, p)
			results[i] = res
			if o.rt.AbortOnError && res.Err != nil && res.Kind() != constants.KindCancelled {
				o.Logger.Warn("parse.abort", "path", p, "kind", res.Kind(), "error", res.Err)
				return res.Err
			}
			return nil
		})
	}
	_ = g.Wait()

	s := Summarize(results)
	o.Logger.Info("parse.done",
		"backend", o.backend.ID(),
		"total", s.Total,
		"parsed", s.Parsed,
		"cached", s.Cached,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"cancelled", s.Cancelled,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return results
}

// ParseOne runs a single path to completion.
func (o *Orchestrator) ParseOne(ctx context.Context, path string) Result {
	start := time.Now()
	res := o.parseOne(ctx, path)
	res.Duration = time.Since(start)
	return res
}

func (o *Orchestrator) parseOne(ctx context.Context, path string) Result {
	res := Result{Path: path}
	if ctx.Err() != nil {
		return o.cancelled(ctx, path)
	}

	doc, err := o.loader.Load(path)
	if err != nil {
		res.Err = o.enrich(err, path, 0)
		o.Logger.Warn("parse.load.failed", "path", path, "error", err)
		return res
	}
	if o.skipReadable && constants.IsReadableExt(doc.Ext) {
		res.Skipped = true
		o.Logger.Debug("parse.skip", "path", path, "reason", "already readable")
		return res
	}

	fp := fingerprint.For(doc.Content, o.backend)
	res.Fingerprint = fp
	log := o.Logger.With("path", path, "fingerprint", fp.Short())

	if a := o.lookup(ctx, log, fp); a != nil {
		res.Artifact, res.Cached = a, true
		return res
	}

	for try := 0; ; try++ {
		out, shared, err := o.flight.Do(ctx, fp, func() (outcome, error) {
			return o.run(ctx, log, doc, fp)
		})
		if err != nil && shared && ctx.Err() == nil && try < maxFlightRetries &&
			common.KindOf(err) == constants.KindCancelled {
			// The caller that led this flight went away; ours has not.
			log.Debug("parse.flight.rejoin", "try", try+1)
			continue
		}
		if err != nil {
			je := common.AsJobError(err)
			res.Err = err
			res.Attempts = je.Attempts
			return res
		}
		res.Artifact = out.artifact
		res.Cached = out.cached
		res.Shared = shared
		res.Warning = out.warning
		res.Attempts = out.attempts
		if shared {
			log.Debug("parse.dedup")
		}
		return res
	}
}

// run is the body of a flight: exactly one per fingerprint executes at a time.
func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, doc *entity.Document, fp entity.Fingerprint) (outcome, error) {
	// A flight for the same fingerprint may have finished between our lookup and now.
	if a := o.lookup(ctx, log, fp); a != nil {
		return outcome{artifact: a, cached: true}, nil
	}
	j := job.New(doc, fp, o.backend.ID())
	a, err := o.runner.Run(ctx, j)
	if err != nil {
		return outcome{}, err
	}

	out := outcome{artifact: a, attempts: j.Attempts}
	if ctx.Err() != nil {
		log.Warn("parse.cache.insert_skipped", "reason", "cancelled")
		return out, nil
	}
	if err := o.store.Insert(ctx, fp, a, o.backend.ID()); err != nil {
		out.warning = fmt.Sprintf("cache insert failed: %v", err)
		log.Warn("parse.cache.insert_failed", "error", err)
		return out, nil
	}
	log.Debug("parse.cache.insert")
	return out, nil
}

// lookup returns the cached artifact, or nil on any miss. Store failures degrade to a miss.
func (o *Orchestrator) lookup(ctx context.Context, log *slog.Logger, fp entity.Fingerprint) *entity.Artifact {
	entry, err := o.store.Lookup(ctx, fp)
	switch {
	case err == nil && entry != nil:
		log.Info("parse.cache.hit", "backend", entry.BackendID)
		return entry.Artifact
	case err == nil, errors.Is(err, cache.ErrMiss):
		return nil
	}
	log.Warn("parse.cache.lookup_failed", "error", err)
	return nil
}

func (o *Orchestrator) cancelled(ctx context.Context, path string) Result {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return Result{Path: path, Err: &common.JobError{
		Kind:    constants.KindCancelled,
		Path:    path,
		Backend: o.backend.ID(),
		Err:     cause,
	}}
}

func (o *Orchestrator) enrich(err error, path string, attempts int) error {
	je := common.AsJobError(err)
	return &common.JobError{
		Kind:       je.Kind,
		Path:       path,
		Backend:    o.backend.ID(),
		Attempts:   attempts,
		RetryAfter: je.RetryAfter,
		Err:        je.Err,
	}
}
