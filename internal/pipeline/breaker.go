package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/joseph-ayodele/docparse/internal/backend"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/entity"
)

// breaker wraps a backend and refuses every call once the backend has returned a
// backend-fatal error such as rejected credentials.
type breaker struct {
	backend.Backend
	logger  *slog.Logger
	tripped atomic.Pointer[common.JobError]
}

func newBreaker(b backend.Backend, logger *slog.Logger) *breaker {
	return &breaker{Backend: b, logger: logger}
}

func (b *breaker) Submit(ctx context.Context, doc *entity.Document) (backend.Outcome, error) {
	if err := b.open(); err != nil {
		return backend.Outcome{}, err
	}
	out, err := b.Backend.Submit(ctx, doc)
	b.observe(err)
	return out, err
}

func (b *breaker) Poll(ctx context.Context, handle string) (backend.Status, error) {
	if err := b.open(); err != nil {
		return backend.Status{}, err
	}
	st, err := b.Backend.Poll(ctx, handle)
	b.observe(err)
	if err == nil && st.State == backend.StateFailed {
		b.observe(st.Err)
	}
	return st, err
}

// Tripped returns the error that opened the breaker, if any.
func (b *breaker) Tripped() *common.JobError {
	return b.tripped.Load()
}

func (b *breaker) open() error {
	je := b.tripped.Load()
	if je == nil {
		return nil
	}
	return common.NewJobError(je.Kind, fmt.Errorf("backend %s disabled after earlier failure: %w", b.ID(), je.Err))
}

func (b *breaker) observe(err error) {
	if err == nil {
		return
	}
	je := common.AsJobError(err)
	if !je.Kind.BackendFatal() {
		return
	}
	if b.tripped.CompareAndSwap(nil, je) {
		b.logger.Error("parse.backend.tripped", "backend", b.ID(), "kind", je.Kind, "error", je.Err)
	}
}
