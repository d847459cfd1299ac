// Package job tracks one parse request through submission, polling and completion.
package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/entity"
)

// transitions lists the legal successors of every non-terminal state.
var transitions = map[constants.JobState][]constants.JobState{
	constants.JobStateCreated: {
		constants.JobStateSubmitted,
		// slot acquisition can fail before anything is submitted
		constants.JobStateFailed,
		constants.JobStateTimedOut,
		constants.JobStateCancelled,
	},
	constants.JobStateSubmitted: {
		constants.JobStateSucceeded,
		constants.JobStatePolling,
		constants.JobStateFailed,
		constants.JobStateTimedOut,
		constants.JobStateCancelled,
	},
	constants.JobStatePolling: {
		constants.JobStatePolling,
		constants.JobStateSucceeded,
		constants.JobStateFailed,
		constants.JobStateTimedOut,
		constants.JobStateCancelled,
	},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to constants.JobState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is not safe for concurrent use; a single Runner drives it.
type Job struct {
	ID          uuid.UUID
	Document    *entity.Document
	Fingerprint entity.Fingerprint
	BackendID   string
	State       constants.JobState
	// Handle is set once an async backend accepts the document.
	Handle string
	// Attempts counts every backend call, retries included.
	Attempts int
	// Polls counts status observations.
	Polls     int
	LastErr   error
	History   []constants.JobState
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(doc *entity.Document, fp entity.Fingerprint, backendID string) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.New(),
		Document:    doc,
		Fingerprint: fp,
		BackendID:   backendID,
		State:       constants.JobStateCreated,
		History:     []constants.JobState{constants.JobStateCreated},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition moves the job to state to, recording it in History.
func (j *Job) Transition(to constants.JobState) error {
	if !CanTransition(j.State, to) {
		return fmt.Errorf("illegal job transition %s -> %s", j.State, to)
	}
	j.State = to
	j.History = append(j.History, to)
	j.UpdatedAt = time.Now()
	return nil
}

func (j *Job) Terminal() bool { return j.State.Terminal() }

func (j *Job) path() string {
	if j.Document == nil {
		return ""
	}
	return j.Document.Path
}
