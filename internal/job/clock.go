package job

import (
	"context"
	"time"

	"github.com/joseph-ayodele/docparse/internal/scheduler"
)

// Clock supplies time and cancellable sleeps to the runner.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	return scheduler.Sleep(ctx, d)
}

// RealClock is the wall clock.
var RealClock Clock = realClock{}
