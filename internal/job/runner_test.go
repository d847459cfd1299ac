package job

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/backend"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/entity"
	"github.com/joseph-ayodele/docparse/internal/scheduler"
)

// scripted replays submit and poll results in order; the last poll result repeats.
type scripted struct {
	mu        sync.Mutex
	submit    []func() (backend.Outcome, error)
	polls     []func() (backend.Status, error)
	submits   atomic.Int32
	pollCalls atomic.Int32
}

func (s *scripted) ID() string               { return "fake" }
func (s *scripted) CacheKey() map[string]any { return nil }

func (s *scripted) Submit(context.Context, *entity.Document) (backend.Outcome, error) {
	n := int(s.submits.Add(1)) - 1
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.submit) {
		n = len(s.submit) - 1
	}
	return s.submit[n]()
}

func (s *scripted) Poll(context.Context, string) (backend.Status, error) {
	n := int(s.pollCalls.Add(1)) - 1
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.polls) {
		n = len(s.polls) - 1
	}
	return s.polls[n]()
}

func immediate(content string) func() (backend.Outcome, error) {
	return func() (backend.Outcome, error) {
		return backend.Immediate(entity.NewArtifact(constants.FormatMarkdown, content)), nil
	}
}

func pending(h string) func() (backend.Outcome, error) {
	return func() (backend.Outcome, error) { return backend.Pending(h), nil }
}

func running() (backend.Status, error) { return backend.Running(), nil }

func succeeded(content string) func() (backend.Status, error) {
	return func() (backend.Status, error) {
		return backend.Succeeded(entity.NewArtifact(constants.FormatMarkdown, content)), nil
	}
}

func failing(kind constants.Kind) func() (backend.Outcome, error) {
	return func() (backend.Outcome, error) { return backend.Outcome{}, common.JobErrorf(kind, "boom") }
}

type fastClock struct{ sleeps atomic.Int32 }

func (c *fastClock) Now() time.Time { return time.Now() }
func (c *fastClock) Sleep(ctx context.Context, _ time.Duration) error {
	c.sleeps.Add(1)
	return ctx.Err()
}

func testRuntime() backend.Runtime {
	rt := backend.DefaultRuntime()
	rt.PollInterval = time.Millisecond
	rt.MaxPollAttempts = 10
	rt.DocumentTimeout = 5 * time.Second
	return rt
}

func newJob() *Job {
	return New(&entity.Document{Path: "a.pdf", Name: "a.pdf"}, entity.Fingerprint("f00d"), "fake")
}

func noWait(context.Context, time.Duration) error { return nil }

func newRunner(b backend.Backend, rt backend.Runtime, clock Clock) *Runner {
	sched := scheduler.New(2, scheduler.WithMaxAttempts(3), scheduler.WithSleeper(noWait))
	return NewRunner(b, sched, rt, WithClock(clock))
}

func TestImmediateSuccess(t *testing.T) {
	b := &scripted{submit: []func() (backend.Outcome, error){immediate("# Title")}}
	j := newJob()

	a, err := newRunner(b, testRuntime(), &fastClock{}).Run(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, "# Title", a.PrimaryContent())
	assert.Equal(t, []constants.JobState{
		constants.JobStateCreated, constants.JobStateSubmitted, constants.JobStateSucceeded,
	}, j.History)
	assert.Equal(t, 0, j.Polls)
	assert.Equal(t, 1, j.Attempts)
}

func TestPendingRunningThenSucceeded(t *testing.T) {
	b := &scripted{
		submit: []func() (backend.Outcome, error){pending("job1")},
		polls:  []func() (backend.Status, error){running, succeeded("# Done")},
	}
	j := newJob()
	clock := &fastClock{}

	a, err := newRunner(b, testRuntime(), clock).Run(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, "# Done", a.PrimaryContent())
	assert.Equal(t, "job1", j.Handle)
	assert.EqualValues(t, 2, b.pollCalls.Load())
	assert.Equal(t, 2, j.Polls)
	assert.EqualValues(t, 1, clock.sleeps.Load())
	assert.Equal(t, []constants.JobState{
		constants.JobStateCreated,
		constants.JobStateSubmitted,
		constants.JobStatePolling,
		constants.JobStatePolling,
		constants.JobStateSucceeded,
	}, j.History)
}

func TestPendingRunningTwiceThenSucceeded(t *testing.T) {
	b := &scripted{
		submit: []func() (backend.Outcome, error){pending("job1")},
		polls:  []func() (backend.Status, error){running, running, succeeded("# Done")},
	}
	j := newJob()

	_, err := newRunner(b, testRuntime(), &fastClock{}).Run(context.Background(), j)
	require.NoError(t, err)
	assert.EqualValues(t, 3, b.pollCalls.Load())
	assert.Equal(t, constants.JobStateSucceeded, j.State)
	assert.Len(t, j.History, 6)
}

func TestRemoteFailure(t *testing.T) {
	b := &scripted{
		submit: []func() (backend.Outcome, error){pending("job1")},
		polls: []func() (backend.Status, error){func() (backend.Status, error) {
			return backend.Failed(common.JobErrorf(constants.KindInvalidDocument, "bad")), nil
		}},
	}
	j := newJob()
	_, err := newRunner(b, testRuntime(), &fastClock{}).Run(context.Background(), j)

	je := common.AsJobError(err)
	assert.Equal(t, constants.KindInvalidDocument, je.Kind)
	assert.Equal(t, "a.pdf", je.Path)
	assert.Equal(t, "fake", je.Backend)
	assert.Equal(t, constants.JobStateFailed, j.State)
}

func TestMaxPollAttemptsFails(t *testing.T) {
	b := &scripted{
		submit: []func() (backend.Outcome, error){pending("job1")},
		polls:  []func() (backend.Status, error){running},
	}
	rt := testRuntime()
	rt.MaxPollAttempts = 3
	j := newJob()

	_, err := newRunner(b, rt, &fastClock{}).Run(context.Background(), j)
	require.Error(t, err)
	assert.Equal(t, constants.JobStateFailed, j.State)
	assert.EqualValues(t, 3, b.pollCalls.Load())
}

func TestTimeoutIndependentOfPollBudget(t *testing.T) {
	b := &scripted{
		submit: []func() (backend.Outcome, error){pending("job1")},
		polls:  []func() (backend.Status, error){running},
	}
	rt := testRuntime()
	rt.MaxPollAttempts = 1 << 30
	rt.PollInterval = 5 * time.Millisecond
	rt.DocumentTimeout = 60 * time.Millisecond
	j := newJob()

	start := time.Now()
	_, err := newRunner(b, rt, RealClock).Run(context.Background(), j)
	require.Error(t, err)
	assert.Equal(t, constants.KindTimedOut, common.KindOf(err))
	assert.Equal(t, constants.JobStateTimedOut, j.State)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRetryBudgetExhausted(t *testing.T) {
	b := &scripted{submit: []func() (backend.Outcome, error){failing(constants.KindRateLimited)}}
	j := newJob()

	_, err := newRunner(b, testRuntime(), &fastClock{}).Run(context.Background(), j)
	je := common.AsJobError(err)
	assert.Equal(t, constants.KindRateLimited, je.Kind)
	assert.Equal(t, 3, je.Attempts)
	assert.EqualValues(t, 3, b.submits.Load())
	assert.Equal(t, constants.JobStateFailed, j.State)
}

func TestNonRetryableSubmitFailure(t *testing.T) {
	b := &scripted{submit: []func() (backend.Outcome, error){failing(constants.KindAuthentication)}}
	j := newJob()

	_, err := newRunner(b, testRuntime(), &fastClock{}).Run(context.Background(), j)
	assert.Equal(t, constants.KindAuthentication, common.KindOf(err))
	assert.EqualValues(t, 1, b.submits.Load())
}

func TestCancellationWhilePolling(t *testing.T) {
	b := &scripted{
		submit: []func() (backend.Outcome, error){pending("job1")},
		polls:  []func() (backend.Status, error){running},
	}
	rt := testRuntime()
	rt.MaxPollAttempts = 1 << 30
	rt.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for b.pollCalls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	j := newJob()
	sched := scheduler.New(1)
	_, err := NewRunner(b, sched, rt).Run(ctx, j)
	assert.Equal(t, constants.KindCancelled, common.KindOf(err))
	assert.Equal(t, constants.JobStateCancelled, j.State)
	assert.Equal(t, 0, sched.InFlight())
}

func TestEmptyArtifactIsInvalid(t *testing.T) {
	b := &scripted{submit: []func() (backend.Outcome, error){immediate("")}}
	_, err := newRunner(b, testRuntime(), &fastClock{}).Run(context.Background(), newJob())
	assert.Equal(t, constants.KindInvalidDocument, common.KindOf(err))
}

func TestTransitionTable(t *testing.T) {
	j := newJob()
	require.Error(t, j.Transition(constants.JobStatePolling))
	require.NoError(t, j.Transition(constants.JobStateSubmitted))
	require.NoError(t, j.Transition(constants.JobStateSucceeded))
	assert.True(t, j.Terminal())
	assert.Error(t, j.Transition(constants.JobStateFailed))
}
