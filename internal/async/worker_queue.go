package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Processor parses a single path.
type Processor interface {
	ParseOne(ctx context.Context, path string) pipeline.Result
}

// ResultHandler receives every finished task, e.g. to write outputs.
type ResultHandler func(ctx context.Context, task Task, res pipeline.Result)

// WorkerQueue feeds queued paths to a fixed set of workers.
type WorkerQueue struct {
	proc     Processor
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	onResult ResultHandler

	ch   chan Task
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*WorkerQueue)(nil)

type Option func(*WorkerQueue)

func WithWorkers(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.ch = make(chan Task, n)
		}
	}
}

// WithProcessTimeout bounds a single task. Zero leaves tasks bounded only by the
// backend's document timeout.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *WorkerQueue) {
		q.timeout = d
	}
}

func WithResultHandler(h ResultHandler) Option {
	return func(q *WorkerQueue) {
		q.onResult = h
	}
}

func NewWorkerQueue(proc Processor, logger *slog.Logger, opts ...Option) *WorkerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &WorkerQueue{
		proc:    proc,
		logger:  logger,
		workers: 2,
		ch:      make(chan Task, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *WorkerQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)
				for task := range q.ch {
					q.process(workerID, task)
				}
				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *WorkerQueue) process(workerID int, task Task) {
	ctx := common.WithRequestID(context.Background(), task.TraceID)
	cancel := context.CancelFunc(func() {})
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
	}
	defer cancel()

	res := q.proc.ParseOne(ctx, task.Path)
	switch {
	case res.Err != nil:
		q.logger.Error("processing failed", "worker_id", workerID, "path", task.Path,
			"kind", res.Kind(), "error", res.Err)
	case res.Skipped:
		q.logger.Info("skipped readable file", "worker_id", workerID, "path", task.Path)
	default:
		q.logger.Info("processed file successfully", "worker_id", workerID, "path", task.Path,
			"cached", res.Cached, "attempts", res.Attempts, "wait_ms", time.Since(task.SubmittedAt).Milliseconds())
	}
	if q.onResult != nil {
		q.onResult(ctx, task, res)
	}
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *WorkerQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "path", task.Path)
		return ErrQueueClosed
	}
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now()
	}
	if task.TraceID == "" {
		task.TraceID = uuid.NewString()
	}
	select {
	case q.ch <- task:
		q.logger.Info("queued file for processing", "path", task.Path, "force", task.Force)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "path", task.Path)
	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to drain, or for ctx.
func (q *WorkerQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
