package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/docparse/constants"
)

// AppError represents wiring and configuration errors.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrCacheMiss        = errors.New("cache miss")
	ErrCorruption       = errors.New("cache corruption")
	ErrPollNotSupported = errors.New("backend does not support polling")
)

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// JobError is the typed per-document failure surfaced to callers. It carries enough
// context (document, backend, attempts) to be reported without consulting logs.
type JobError struct {
	Kind     constants.Kind
	Path     string
	Backend  string
	Attempts int
	// RetryAfter is a server supplied hint, only meaningful for KindRateLimited.
	RetryAfter time.Duration
	Err        error
}

func (e *JobError) Error() string {
	msg := string(e.Kind)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Backend != "" {
		msg += " (backend=" + e.Backend
		if e.Attempts > 0 {
			msg += fmt.Sprintf(", attempts=%d", e.Attempts)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Is matches another *JobError by kind, so errors.Is(err, &JobError{Kind: k}) works.
func (e *JobError) Is(target error) bool {
	t, ok := target.(*JobError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *JobError) Retryable() bool {
	return e.Kind.Retryable()
}

// GRPCStatus lets servers embedding the pipeline return job failures unchanged.
func (e *JobError) GRPCStatus() *status.Status {
	return status.New(KindToCode(e.Kind), e.Error())
}

// NewJobError builds a JobError of the given kind.
func NewJobError(kind constants.Kind, err error) *JobError {
	return &JobError{Kind: kind, Err: err}
}

// JobErrorf builds a JobError with a formatted cause.
func JobErrorf(kind constants.Kind, format string, args ...interface{}) *JobError {
	return &JobError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// AsJobError classifies any error. Context errors map to TimedOut/Cancelled,
// anything unclassified is Internal.
func AsJobError(err error) *JobError {
	if err == nil {
		return nil
	}
	var je *JobError
	if errors.As(err, &je) {
		return je
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewJobError(constants.KindTimedOut, err)
	case errors.Is(err, context.Canceled):
		return NewJobError(constants.KindCancelled, err)
	case errors.Is(err, ErrCorruption):
		return NewJobError(constants.KindCacheCorruption, err)
	}
	return NewJobError(constants.KindInternal, err)
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) constants.Kind {
	if err == nil {
		return ""
	}
	return AsJobError(err).Kind
}

// KindToCode maps failure kinds onto gRPC codes.
func KindToCode(k constants.Kind) codes.Code {
	switch k {
	case constants.KindNetwork:
		return codes.Unavailable
	case constants.KindRateLimited:
		return codes.ResourceExhausted
	case constants.KindAuthentication:
		return codes.Unauthenticated
	case constants.KindUnsupported, constants.KindInvalidDocument:
		return codes.InvalidArgument
	case constants.KindTimedOut:
		return codes.DeadlineExceeded
	case constants.KindCancelled:
		return codes.Canceled
	case constants.KindCacheCorruption:
		return codes.DataLoss
	}
	return codes.Internal
}
