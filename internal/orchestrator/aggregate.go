package orchestrator

import (
	"sort"
	"time"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// Aggregate is the rolled-up result of an investigation. Partial aggregates
// merge associatively and order-independently; Finalize freezes the result
// and computes the overall confidence.
type Aggregate struct {
	InvestigationID types.ID                  `json:"investigation_id"`
	Status          types.InvestigationStatus `json:"status"`

	// Findings is the merged, de-duplicated finding set.
	Findings []finding.Finding `json:"findings"`

	// FailedCapabilities names capabilities that failed or were skipped.
	FailedCapabilities []string `json:"failed_capabilities,omitempty"`

	// SkippedRecordCount rolls up malformed records detectors skipped.
	SkippedRecordCount int `json:"skipped_record_count"`

	// Report is the synthesized narrative, when report synthesis ran.
	Report string `json:"report,omitempty"`

	// ConfidenceSum and ConfidenceWeight accumulate importance-weighted
	// quality scores; OverallConfidence = ConfidenceSum/ConfidenceWeight
	// once finalized. Failed and skipped capabilities contribute their
	// weight at score zero.
	ConfidenceSum    float64 `json:"confidence_sum"`
	ConfidenceWeight float64 `json:"confidence_weight"`

	// OverallConfidence is set by Finalize, in [0, 1].
	OverallConfidence float64 `json:"overall_confidence"`

	FinalizedAt time.Time `json:"finalized_at,omitzero"`

	frozen bool
}

// NewAggregate returns the empty aggregate, the identity of Merge.
func NewAggregate(investigationID types.ID) *Aggregate {
	return &Aggregate{InvestigationID: investigationID}
}

// AddOutcome folds one accepted node outcome into the aggregate.
func (a *Aggregate) AddOutcome(findings []finding.Finding, importance, score float64, skippedRecords int) {
	if a.frozen {
		return
	}
	a.Findings = finding.Merge(a.Findings, findings)
	a.ConfidenceSum += importance * score
	a.ConfidenceWeight += importance
	a.SkippedRecordCount += skippedRecords
}

// AddFailure records a failed or skipped capability: its importance weighs
// in at score zero.
func (a *Aggregate) AddFailure(capability string, importance float64) {
	if a.frozen {
		return
	}
	a.FailedCapabilities = append(a.FailedCapabilities, capability)
	sort.Strings(a.FailedCapabilities)
	a.ConfidenceWeight += importance
}

// Merge folds another partial aggregate into this one. The operation is
// associative and order-independent: findings merge by natural key with
// max-severity collapse, failed capabilities union, weighted sums add.
func (a *Aggregate) Merge(other *Aggregate) {
	if a.frozen || other == nil {
		return
	}
	a.Findings = finding.Merge(a.Findings, other.Findings)
	a.FailedCapabilities = unionSorted(a.FailedCapabilities, other.FailedCapabilities)
	a.SkippedRecordCount += other.SkippedRecordCount
	a.ConfidenceSum += other.ConfidenceSum
	a.ConfidenceWeight += other.ConfidenceWeight
	if a.Report == "" {
		a.Report = other.Report
	}
}

// Finalize computes the overall confidence and freezes the aggregate.
// Further mutation is a no-op.
func (a *Aggregate) Finalize(status types.InvestigationStatus) {
	if a.frozen {
		return
	}
	a.Status = status
	if a.ConfidenceWeight > 0 {
		a.OverallConfidence = a.ConfidenceSum / a.ConfidenceWeight
	}
	if a.OverallConfidence < 0 {
		a.OverallConfidence = 0
	}
	if a.OverallConfidence > 1 {
		a.OverallConfidence = 1
	}
	a.FinalizedAt = time.Now()
	a.frozen = true
}

// Frozen reports whether Finalize has run.
func (a *Aggregate) Frozen() bool {
	return a.frozen
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		seen[s] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
