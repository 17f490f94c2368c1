package model

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// allowedTransitions lists the forward moves of the job state machine.
// Re-applying the current status is always accepted (see CanTransition).
var allowedTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
	JobStatusCompleted:  {},
	JobStatusFailed:     {},
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether no further transition can happen from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether a job in status from may be moved to status to.
// Same-status moves are allowed so that every status write is idempotent.
func CanTransition(from, to JobStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PredecessorsOf returns every status a job may be in before moving to s,
// including s itself. Stores use it to build guarded UPDATE statements.
func PredecessorsOf(s JobStatus) []JobStatus {
	out := []JobStatus{s}
	for from, nexts := range allowedTransitions {
		for _, n := range nexts {
			if n == s {
				out = append(out, from)
			}
		}
	}
	return out
}

// Job is one request-to-answer unit of work.
type Job struct {
	ID       string
	Token    string // correlation token used to address the answer
	Status   JobStatus
	Result   *string // set iff Status == JobStatusCompleted
	Question string
	Target   DeliveryTarget

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewJob(id, token, question string, target DeliveryTarget) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id,
		Token:     token,
		Status:    JobStatusPending,
		Question:  question,
		Target:    target,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResultText returns the result or "" when the job has none.
func (j *Job) ResultText() string {
	if j.Result == nil {
		return ""
	}
	return *j.Result
}
