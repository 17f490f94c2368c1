package model

import "time"

type StepOutcome string

const (
	StepOutcomeDone    StepOutcome = "done"
	StepOutcomeSkipped StepOutcome = "skipped" // best-effort step that gave up
)

// StepRecord is the durable marker written once a pipeline step has finished for a job.
// Output carries the step's return value so a resumed run can feed it to later steps.
type StepRecord struct {
	JobID       string      `json:"job_id"`
	Step        string      `json:"step"`
	Outcome     StepOutcome `json:"outcome"`
	Output      string      `json:"output,omitempty"`
	Attempts    int         `json:"attempts"`
	Error       string      `json:"error,omitempty"`
	CompletedAt time.Time   `json:"completed_at"`
}
