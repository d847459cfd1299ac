// Package scheduler bounds concurrent backend calls and retries transient failures.
//
// A slot is held only for the duration of a single backend call. Backoff waits and
// poll sleeps happen with no slot held, so one document's retry delay never starves
// other documents.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/common"
)

const (
	defaultMaxConcurrent = 4
	defaultMaxAttempts   = 4
	defaultBaseDelay     = time.Second
	defaultMaxDelay      = time.Minute
)

// Sleeper waits for d or until ctx is done. Tests swap it for an instant version.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Scheduler struct {
	sem         *semaphore.Weighted
	capacity    int
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	limiter     *rate.Limiter
	sleep       Sleeper
	jitter      func(max time.Duration) time.Duration
	logger      *slog.Logger
	inFlight    atomic.Int64
	peak        atomic.Int64
}

type Option func(*Scheduler)

// WithMaxAttempts bounds the total number of calls per operation (first call included).
func WithMaxAttempts(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the base and maximum retry delay.
func WithBackoff(base, max time.Duration) Option {
	return func(s *Scheduler) {
		if base > 0 {
			s.baseDelay = base
		}
		if max > 0 {
			s.maxDelay = max
		}
	}
}

// WithRateLimit caps the rate at which slots are granted. Zero disables it.
func WithRateLimit(perSecond float64) Option {
	return func(s *Scheduler) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithSleeper(fn Sleeper) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithJitter replaces the random jitter source; fn returns a value in [0, max].
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.jitter = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scheduler allowing maxConcurrent simultaneous backend calls.
func New(maxConcurrent int, opts ...Option) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	s := &Scheduler{
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		capacity:    maxConcurrent,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		sleep:       Sleep,
		jitter:      fullJitter,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Slot is a concurrency token. Release is safe to call more than once.
type Slot struct {
	s    *Scheduler
	once sync.Once
}

func (t *Slot) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.s.inFlight.Add(-1)
		t.s.sem.Release(1)
	})
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Scheduler) Acquire(ctx context.Context) (*Slot, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			if cause := context.Cause(ctx); cause != nil && ctx.Err() != nil {
				return nil, cause
			}
			return nil, err
		}
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return nil, cause
		}
		return nil, err
	}
	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return &Slot{s: s}, nil
}

// Do runs op inside a slot, retrying retryable failures with exponential backoff and
// full jitter. The slot is released before every backoff wait. It returns the number
// of calls made and the last error.
func (s *Scheduler) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	var err error
	for attempt := 1; ; attempt++ {
		err = s.call(ctx, op)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, err
		}
		je := common.AsJobError(err)
		if !je.Retryable() {
			return attempt, err
		}
		if attempt >= s.maxAttempts {
			s.logger.Warn("scheduler.retry_exhausted", "attempts", attempt, "kind", je.Kind, "error", err)
			return attempt, err
		}

		delay := s.backoff(attempt, je)
		s.logger.Debug("scheduler.backoff", "attempt", attempt, "kind", je.Kind, "delay_ms", delay.Milliseconds())
		if serr := s.sleep(ctx, delay); serr != nil {
			return attempt, serr
		}
	}
}

func (s *Scheduler) call(ctx context.Context, op func(ctx context.Context) error) error {
	slot, err := s.Acquire(ctx)
	if err != nil {
		return err
	}
	defer slot.Release()
	return op(ctx)
}

// backoff computes the wait before the next attempt. Rate limiting doubles the
// window and a server supplied Retry-After is treated as a floor.
func (s *Scheduler) backoff(attempt int, je *common.JobError) time.Duration {
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	window := s.baseDelay << shift
	if je.Kind == constants.KindRateLimited {
		window *= 2
	}
	if window <= 0 || window > s.maxDelay {
		window = s.maxDelay
	}
	d := s.jitter(window)
	if je.RetryAfter > d {
		d = je.RetryAfter
	}
	return d
}

func fullJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max) + 1))
}

// InFlight is the number of slots currently held.
func (s *Scheduler) InFlight() int { return int(s.inFlight.Load()) }

// Peak is the highest InFlight value observed.
func (s *Scheduler) Peak() int { return int(s.peak.Load()) }

// Capacity is the configured slot count.
func (s *Scheduler) Capacity() int { return s.capacity }

// MaxAttempts is the configured call budget per operation.
func (s *Scheduler) MaxAttempts() int { return s.maxAttempts }
