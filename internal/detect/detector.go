// Package detect implements the fraud and anomaly detectors that turn raw
// procurement records into typed findings: digit-distribution testing,
// spectral periodicity, co-bidding cartel detection, temporal anomaly
// scoring, and structuring/laundering heuristics.
//
// Detectors are stateless. Each declares a minimum sample size below which it
// reports insufficient data instead of guessing, and each skips (and counts)
// malformed records rather than failing on them.
package detect

import (
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
)

// Report is the outcome of one detector run.
type Report struct {
	// Findings holds the detections, empty when nothing was flagged.
	Findings []finding.Finding `json:"findings,omitempty"`

	// SampleSize is the number of valid records actually analyzed.
	SampleSize int `json:"sample_size"`

	// SkippedRecords counts malformed records that were excluded.
	SkippedRecords int `json:"skipped_records"`

	// Insufficient is true when fewer valid records than the detector's
	// minimum were available; Findings is empty in that case.
	Insufficient bool `json:"insufficient,omitempty"`
}

// insufficientReport builds the standard below-minimum report.
func insufficientReport(sampleSize, skipped int) Report {
	return Report{
		SampleSize:     sampleSize,
		SkippedRecords: skipped,
		Insufficient:   true,
	}
}
