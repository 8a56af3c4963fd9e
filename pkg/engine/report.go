package engine

import (
	"fmt"
	"time"
)

// StepStatus is the terminal disposition of one plan step.
type StepStatus string

const (
	// StepSucceeded means the adapter call completed and the resource
	// snapshot was committed.
	StepSucceeded StepStatus = "succeeded"

	// StepFailed means the step exhausted its attempts without success.
	StepFailed StepStatus = "failed"

	// StepSkipped means the step never ran because a step it depends on
	// failed, or the run was stopping.
	StepSkipped StepStatus = "skipped"

	// StepUnchanged means the step was a no-op.
	StepUnchanged StepStatus = "unchanged"
)

// StepResult records the outcome of one step.
type StepResult struct {
	StepID   string        `json:"step_id"`
	Resource string        `json:"resource"`
	Op       Operation     `json:"op"`
	Status   StepStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Report is the outcome of one apply run. Steps appear in completion order.
type Report struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepResult `json:"steps"`

	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Unchanged int `json:"unchanged"`
}

func (r *Report) record(res StepResult) {
	r.Steps = append(r.Steps, res)
	switch res.Status {
	case StepSucceeded:
		r.Succeeded++
	case StepFailed:
		r.Failed++
	case StepSkipped:
		r.Skipped++
	case StepUnchanged:
		r.Unchanged++
	}
}

// OK reports whether every step either succeeded or was a no-op.
func (r *Report) OK() bool { return r.Failed == 0 && r.Skipped == 0 }

// Err returns nil for a clean run and a summary error otherwise.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("apply %s: %d step(s) failed, %d skipped", r.RunID, r.Failed, r.Skipped)
}
