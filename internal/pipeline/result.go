package pipeline

import (
	"time"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/entity"
)

// Result is the outcome for one input path.
type Result struct {
	Path        string
	Fingerprint entity.Fingerprint
	Artifact    *entity.Artifact
	Err         error
	// Cached is set when the artifact came from the cache store.
	Cached bool
	// Shared is set when the artifact was produced by a concurrent parse of the same fingerprint.
	Shared bool
	// Skipped is set for files that are already readable and were passed through.
	Skipped bool
	// Warning carries a non-fatal problem, e.g. a failed cache insert.
	Warning  string
	Attempts int
	Duration time.Duration
}

func (r Result) OK() bool { return r.Err == nil }

// Kind returns the failure kind, or "" on success.
func (r Result) Kind() constants.Kind { return common.KindOf(r.Err) }

// Status is the short label used in reports and CLI output.
func (r Result) Status() string {
	switch {
	case r.Err != nil:
		return string(r.Kind())
	case r.Skipped:
		return "SKIPPED"
	case r.Cached:
		return "CACHED"
	}
	return "PARSED"
}

// Summary counts results by outcome.
type Summary struct {
	Total     int
	Parsed    int
	Cached    int
	Skipped   int
	Failed    int
	Cancelled int
}

func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Err != nil && r.Kind() == constants.KindCancelled:
			s.Cancelled++
		case r.Err != nil:
			s.Failed++
		case r.Skipped:
			s.Skipped++
		case r.Cached:
			s.Cached++
		default:
			s.Parsed++
		}
	}
	return s
}

// FirstError returns the first failure in caller order, ignoring cancellations caused
// by an earlier abort.
func FirstError(results []Result) error {
	var cancelled error
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		if r.Kind() != constants.KindCancelled {
			return r.Err
		}
		if cancelled == nil {
			cancelled = r.Err
		}
	}
	return cancelled
}
