package agent

import (
	"time"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// Task is the unit of work handed to an agent. The orchestrator builds one
// task per plan node and re-submits it with incremented Attempt when the
// quality gate rejects the outcome.
type Task struct {
	ID              types.ID               `json:"id"`
	InvestigationID types.ID               `json:"investigation_id"`
	Capability      string                 `json:"capability"`
	Query           procurement.Query      `json:"query"`
	Records         *procurement.RecordSet `json:"-"`
	Timeout         time.Duration          `json:"timeout"`
	Attempt         int                    `json:"attempt"`
	Feedback        []string               `json:"feedback,omitempty"`
	Importance      float64                `json:"importance"`
	CreatedAt       time.Time              `json:"created_at"`
}

// NewTask creates a task for the given capability.
func NewTask(investigationID types.ID, capability string, query procurement.Query) Task {
	return Task{
		ID:              types.NewID(),
		InvestigationID: investigationID,
		Capability:      capability,
		Query:           query,
		Timeout:         2 * time.Minute,
		Attempt:         1,
		Importance:      1.0,
		CreatedAt:       time.Now(),
	}
}

// WithRecords attaches the fetched record set the agent should analyze.
func (t Task) WithRecords(records *procurement.RecordSet) Task {
	t.Records = records
	return t
}

// WithTimeout sets the per-task soft timeout.
func (t Task) WithTimeout(timeout time.Duration) Task {
	t.Timeout = timeout
	return t
}

// WithImportance sets the weight this task carries in confidence aggregation.
func (t Task) WithImportance(importance float64) Task {
	t.Importance = importance
	return t
}

// Retry returns a copy of the task prepared for another attempt, carrying the
// reflection feedback forward.
func (t Task) Retry(feedback string) Task {
	t.Attempt++
	t.Feedback = append(append([]string(nil), t.Feedback...), feedback)
	return t
}

// OutcomeStatus classifies how a task attempt ended.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is what an agent produces for one task attempt.
type Outcome struct {
	TaskID         types.ID          `json:"task_id"`
	Capability     string            `json:"capability"`
	Status         OutcomeStatus     `json:"status"`
	Findings       []finding.Finding `json:"findings,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	QualityScore   float64           `json:"quality_score"`
	Attempt        int               `json:"attempt"`
	SampleSize     int               `json:"sample_size"`
	SkippedRecords int               `json:"skipped_records"`
	Insufficient   bool              `json:"insufficient"`
	Error          string            `json:"error,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    time.Time         `json:"completed_at"`
}

// NewOutcome starts an outcome for the given task.
func NewOutcome(task Task) Outcome {
	return Outcome{
		TaskID:     task.ID,
		Capability: task.Capability,
		Attempt:    task.Attempt,
		StartedAt:  time.Now(),
	}
}

// Complete marks the outcome succeeded.
func (o *Outcome) Complete(findings []finding.Finding, summary string) {
	o.Status = OutcomeSucceeded
	o.Findings = findings
	o.Summary = summary
	o.CompletedAt = time.Now()
}

// Fail marks the outcome failed. Agent contract violations surface here, not
// as panics.
func (o *Outcome) Fail(err error) {
	o.Status = OutcomeFailed
	o.Error = err.Error()
	o.CompletedAt = time.Now()
}

// Duration is the wall time of this attempt.
func (o Outcome) Duration() time.Duration {
	if o.CompletedAt.IsZero() {
		return 0
	}
	return o.CompletedAt.Sub(o.StartedAt)
}
