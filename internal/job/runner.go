package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/backend"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/entity"
	"github.com/joseph-ayodele/docparse/internal/scheduler"
)

// errDocumentTimeout is the cancellation cause installed for the per-document deadline.
var errDocumentTimeout = errors.New("document timeout elapsed")

// Runner drives jobs against one backend.
type Runner struct {
	backend backend.Backend
	sched   *scheduler.Scheduler
	rt      backend.Runtime
	clock   Clock
	logger  *slog.Logger
}

type RunnerOption func(*Runner)

func WithClock(c Clock) RunnerOption {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRunner(b backend.Backend, sched *scheduler.Scheduler, rt backend.Runtime, opts ...RunnerOption) *Runner {
	r := &Runner{
		backend: b,
		sched:   sched,
		rt:      rt,
		clock:   RealClock,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives j to a terminal state and returns the artifact on success. Errors are
// *common.JobError values carrying the document, backend and attempt count.
func (r *Runner) Run(ctx context.Context, j *Job) (*entity.Artifact, error) {
	if r.rt.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.rt.DocumentTimeout, errDocumentTimeout)
		defer cancel()
	}
	ctx = common.WithJobID(ctx, j.ID.String())
	log := r.logger.With("job_id", j.ID.String(), "path", j.path(), "backend", r.backend.ID())
	start := r.clock.Now()

	var out backend.Outcome
	attempts, err := r.sched.Do(ctx, func(ctx context.Context) error {
		if j.State == constants.JobStateCreated {
			if err := j.Transition(constants.JobStateSubmitted); err != nil {
				return err
			}
			log.Debug("job.submit", "fingerprint", j.Fingerprint.Short())
		}
		o, err := r.backend.Submit(ctx, j.Document)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	j.Attempts += attempts
	if err != nil {
		return nil, r.finish(ctx, j, log, err)
	}

	switch out.Kind {
	case backend.OutcomeImmediate:
		return r.succeed(ctx, j, log, out.Artifact, start)
	case backend.OutcomePending:
		j.Handle = out.Handle
		if err := j.Transition(constants.JobStatePolling); err != nil {
			return nil, r.finish(ctx, j, log, err)
		}
		log.Debug("job.pending", "handle", out.Handle)
	default:
		return nil, r.finish(ctx, j, log, common.JobErrorf(constants.KindInternal, "backend returned outcome %v", out.Kind))
	}

	for {
		var st backend.Status
		attempts, err := r.sched.Do(ctx, func(ctx context.Context) error {
			s, err := r.backend.Poll(ctx, j.Handle)
			if err != nil {
				return err
			}
			st = s
			return nil
		})
		j.Attempts += attempts
		if err != nil {
			return nil, r.finish(ctx, j, log, err)
		}
		j.Polls++

		switch st.State {
		case backend.StateSucceeded:
			return r.succeed(ctx, j, log, st.Artifact, start)
		case backend.StateFailed:
			ferr := st.Err
			if ferr == nil {
				ferr = common.JobErrorf(constants.KindInternal, "job %s failed without detail", j.Handle)
			}
			return nil, r.finish(ctx, j, log, ferr)
		case backend.StateRunning:
			if err := j.Transition(constants.JobStatePolling); err != nil {
				return nil, r.finish(ctx, j, log, err)
			}
		default:
			return nil, r.finish(ctx, j, log, common.JobErrorf(constants.KindInternal, "unknown poll state %v", st.State))
		}

		if r.rt.MaxPollAttempts > 0 && j.Polls >= r.rt.MaxPollAttempts {
			return nil, r.finish(ctx, j, log,
				common.JobErrorf(constants.KindInternal, "still running after %d polls (max_poll_attempts)", j.Polls))
		}
		log.Debug("job.poll", "polls", j.Polls, "next_in_ms", r.rt.PollInterval.Milliseconds())
		if err := r.clock.Sleep(ctx, r.rt.PollInterval); err != nil {
			return nil, r.finish(ctx, j, log, err)
		}
	}
}

func (r *Runner) succeed(ctx context.Context, j *Job, log *slog.Logger, a *entity.Artifact, start time.Time) (*entity.Artifact, error) {
	if a == nil || a.Empty() {
		return nil, r.finish(ctx, j, log, common.JobErrorf(constants.KindInvalidDocument, "backend returned no content"))
	}
	if err := j.Transition(constants.JobStateSucceeded); err != nil {
		return nil, r.finish(ctx, j, log, err)
	}
	log.Info("job.succeeded",
		"attempts", j.Attempts,
		"polls", j.Polls,
		"formats", fmt.Sprint(a.Formats()),
		"elapsed_ms", r.clock.Now().Sub(start).Milliseconds(),
	)
	return a, nil
}

// finish moves j to the terminal state matching err and returns the enriched error.
// The document deadline wins over every other cause, then caller cancellation.
func (r *Runner) finish(ctx context.Context, j *Job, log *slog.Logger, err error) error {
	je := r.classify(ctx, err)
	je = &common.JobError{
		Kind:       je.Kind,
		Path:       j.path(),
		Backend:    r.backend.ID(),
		Attempts:   j.Attempts,
		RetryAfter: je.RetryAfter,
		Err:        unwrapJobError(je),
	}
	j.LastErr = je

	to := constants.JobStateFailed
	switch je.Kind {
	case constants.KindTimedOut:
		to = constants.JobStateTimedOut
	case constants.KindCancelled:
		to = constants.JobStateCancelled
	}
	if terr := j.Transition(to); terr != nil {
		log.Error("job transition rejected", "from", j.State, "to", to, "error", terr)
	}

	switch to {
	case constants.JobStateCancelled:
		log.Info("job.cancelled", "attempts", j.Attempts)
	default:
		log.Warn("job.failed", "state", to, "kind", je.Kind, "attempts", j.Attempts, "polls", j.Polls, "error", je.Err)
	}
	return je
}

func (r *Runner) classify(ctx context.Context, err error) *common.JobError {
	if ctx.Err() != nil {
		if errors.Is(context.Cause(ctx), errDocumentTimeout) {
			return common.JobErrorf(constants.KindTimedOut, "no result within %s", r.rt.DocumentTimeout)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return common.NewJobError(constants.KindTimedOut, context.Cause(ctx))
		}
		return common.NewJobError(constants.KindCancelled, context.Cause(ctx))
	}
	return common.AsJobError(err)
}

func unwrapJobError(je *common.JobError) error {
	if je.Err != nil {
		return je.Err
	}
	return errors.New(string(je.Kind))
}
