// Package backend defines the contract shared by every parsing backend.
//
// A backend either answers a submission immediately or hands back a job handle that
// is polled until it reaches a terminal status. Synchronous backends are the
// degenerate case of zero polls, so callers never branch on the backend type.
package backend

import (
	"context"
	"time"

	"github.com/joseph-ayodele/docparse/internal/entity"
)

// Backend is implemented by docling, docling-serve and llamaparse.
type Backend interface {
	// ID names the backend; it is part of every fingerprint.
	ID() string
	// CacheKey returns every option that can change the produced artifact.
	CacheKey() map[string]any
	// Submit returns an Immediate or Pending outcome. A returned error is a failed
	// submission and should be a *common.JobError.
	Submit(ctx context.Context, doc *entity.Document) (Outcome, error)
	// Poll checks a handle returned by a Pending outcome. A returned error means the
	// status could not be fetched; a failed job is reported through Status.
	Poll(ctx context.Context, handle string) (Status, error)
}

// Checker is implemented by backends that support a pre-flight availability check.
type Checker interface {
	Check(ctx context.Context) error
}

// OutcomeKind discriminates Outcome.
type OutcomeKind int

const (
	OutcomeImmediate OutcomeKind = iota + 1
	OutcomePending
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeImmediate:
		return "immediate"
	case OutcomePending:
		return "pending"
	}
	return "unknown"
}

// Outcome is the result of a successful Submit call.
type Outcome struct {
	Kind     OutcomeKind
	Artifact *entity.Artifact
	Handle   string
}

func Immediate(a *entity.Artifact) Outcome {
	return Outcome{Kind: OutcomeImmediate, Artifact: a}
}

func Pending(handle string) Outcome {
	return Outcome{Kind: OutcomePending, Handle: handle}
}

// State is the remote job state reported by Poll.
type State int

const (
	StateRunning State = iota + 1
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Status is one poll observation.
type Status struct {
	State    State
	Artifact *entity.Artifact
	Err      error
}

func Running() Status { return Status{State: StateRunning} }

func Succeeded(a *entity.Artifact) Status {
	return Status{State: StateSucceeded, Artifact: a}
}

// Failed reports a remote job that finished unsuccessfully.
func Failed(err error) Status {
	return Status{State: StateFailed, Err: err}
}

// Runtime holds the per-run settings that control scheduling but never the output.
type Runtime struct {
	PollInterval      time.Duration
	MaxPollAttempts   int
	DocumentTimeout   time.Duration
	AbortOnError      bool
	MaxConcurrency    int
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RequestsPerSecond float64
}

// DefaultRuntime mirrors docling-serve's defaults.
func DefaultRuntime() Runtime {
	return Runtime{
		PollInterval:    5 * time.Second,
		MaxPollAttempts: 60,
		DocumentTimeout: 7 * 24 * time.Hour,
		MaxConcurrency:  4,
		MaxRetries:      3,
		RetryBaseDelay:  time.Second,
	}
}

// Seconds converts a config value expressed in (possibly fractional) seconds.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
