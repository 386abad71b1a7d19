// Package finding defines the typed fraud/anomaly observation produced by
// detectors and agents, plus the merge and de-duplication rules used when
// multiple detectors report on the same entities.
package finding

import (
	"time"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// Kind identifies the pattern a finding reports.
type Kind string

const (
	KindDigitDistribution    Kind = "digit-distribution-violation"
	KindSpectralPeriodicity  Kind = "spectral-periodicity"
	KindBidRotation          Kind = "bid-rotation"
	KindCartelCommunity      Kind = "cartel-community"
	KindTemporalAnomaly      Kind = "temporal-anomaly"
	KindThresholdStructuring Kind = "threshold-structuring"
	KindRoundNumber          Kind = "round-number-payment"
	KindCircularPayment      Kind = "circular-payment"
	KindLegalViolation       Kind = "legal-violation"
)

// Severity classifies how serious a finding is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities for comparison; higher is more severe.
func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

// Max returns the more severe of the two.
func (s Severity) Max(other Severity) Severity {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

// Evidence is one supporting fact for a finding. Order matters: evidence is
// presented in the order detectors recorded it.
type Evidence struct {
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Finding is a single typed fraud/anomaly observation. It is an immutable
// value object; builder-style With* methods return modified copies.
type Finding struct {
	ID               types.ID   `json:"id"`
	Kind             Kind       `json:"kind"`
	Title            string     `json:"title"`
	Severity         Severity   `json:"severity"`
	Confidence       float64    `json:"confidence"` // 0.0 - 1.0
	Evidence         []Evidence `json:"evidence,omitempty"`
	AffectedEntities []string   `json:"affected_entities,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// New creates a finding with the given kind, title, and severity.
func New(kind Kind, title string, severity Severity) Finding {
	return Finding{
		ID:         types.NewID(),
		Kind:       kind,
		Title:      title,
		Severity:   severity,
		Confidence: 1.0,
		CreatedAt:  time.Now(),
	}
}

// WithConfidence sets the confidence level, clamped to [0,1].
func (f Finding) WithConfidence(confidence float64) Finding {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	f.Confidence = confidence
	return f
}

// WithEvidence appends evidence to the finding.
func (f Finding) WithEvidence(evidence ...Evidence) Finding {
	f.Evidence = append(append([]Evidence{}, f.Evidence...), evidence...)
	return f
}

// WithEntities sets the affected entities.
func (f Finding) WithEntities(entities ...string) Finding {
	f.AffectedEntities = entities
	return f
}

// NewEvidence creates a timestamped evidence entry.
func NewEvidence(description string, data map[string]any) Evidence {
	return Evidence{
		Description: description,
		Data:        data,
		Timestamp:   time.Now(),
	}
}
