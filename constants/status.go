package constants

// JobState is the lifecycle state of a single parse job.
type JobState string

// Stable values (these exact strings appear in logs and reports).
const (
	JobStateCreated   JobState = "CREATED"   // cache miss, waiting for a slot
	JobStateSubmitted JobState = "SUBMITTED" // submit call issued
	JobStatePolling   JobState = "POLLING"   // async backend returned a job handle
	JobStateSucceeded JobState = "SUCCEEDED" // terminal
	JobStateFailed    JobState = "FAILED"    // terminal
	JobStateTimedOut  JobState = "TIMED_OUT" // terminal: document timeout elapsed
	JobStateCancelled JobState = "CANCELLED" // terminal: invocation cancelled
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateTimedOut, JobStateCancelled:
		return true
	}
	return false
}
