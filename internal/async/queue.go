package async

import (
	"context"
	"time"
)

// Task asks a worker to parse one file.
type Task struct {
	Path string
	// Force parses the file even when up-to-date outputs already exist.
	Force       bool
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Shutdown(ctx context.Context)
}
