package types

// InvestigationStatus represents the lifecycle state of an investigation.
// Transitions: Planning -> Executing -> Aggregating -> Completed, or Failed
// at any point before Aggregating when no recoverable work remains.
type InvestigationStatus string

const (
	InvestigationPlanning    InvestigationStatus = "planning"
	InvestigationExecuting   InvestigationStatus = "executing"
	InvestigationAggregating InvestigationStatus = "aggregating"
	InvestigationCompleted   InvestigationStatus = "completed"
	InvestigationFailed      InvestigationStatus = "failed"
)

// IsTerminal returns true when the investigation has finished, successfully or not.
func (s InvestigationStatus) IsTerminal() bool {
	return s == InvestigationCompleted || s == InvestigationFailed
}

// TaskStatus represents the execution status of a single task node.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// IsTerminal returns true when the task has reached a final status.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskSkipped:
		return true
	default:
		return false
	}
}

// Depth controls how broad an investigation is planned.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// IsValid checks if the Depth is a known value.
func (d Depth) IsValid() bool {
	switch d {
	case DepthQuick, DepthStandard, DepthDeep:
		return true
	default:
		return false
	}
}
