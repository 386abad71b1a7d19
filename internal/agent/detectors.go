package agent

import (
	"context"
	"fmt"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/detect"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// detectorAgent is the shared shell of the built-in detector-backed agents.
// Each concrete agent supplies a run function over the task's record set.
type detectorAgent struct {
	name       string
	capability string
	run        func(task Task) (detect.Report, error)
}

func (a *detectorAgent) Name() string       { return a.name }
func (a *detectorAgent) Capability() string { return a.capability }

func (a *detectorAgent) Start(ctx context.Context) error { return nil }
func (a *detectorAgent) Stop(ctx context.Context) error  { return nil }

func (a *detectorAgent) Health(ctx context.Context) types.HealthStatus {
	return types.Healthy(a.name)
}

// Handle runs the detector and converts its report into an outcome. Bad input
// becomes a failed outcome, never a panic or a hard error: the orchestrator
// treats the returned error as an infrastructure fault, not an analysis one.
func (a *detectorAgent) Handle(ctx context.Context, task Task, prior []Outcome) (Outcome, error) {
	outcome := NewOutcome(task)

	if err := ctx.Err(); err != nil {
		outcome.Fail(err)
		return outcome, nil
	}
	if task.Records == nil {
		outcome.Fail(types.NewError(types.NODE_BAD_RESULT,
			fmt.Sprintf("%s task carries no records", a.capability)))
		return outcome, nil
	}

	report, err := a.run(task)
	if err != nil {
		outcome.Fail(err)
		return outcome, nil
	}

	outcome.SampleSize = report.SampleSize
	outcome.SkippedRecords = report.SkippedRecords
	outcome.Insufficient = report.Insufficient
	outcome.Complete(report.Findings, summarizeReport(a.capability, report))
	return outcome, nil
}

// SelfAssess scores an outcome on data sufficiency and execution health. The
// score is deterministic so the reflection loop behaves the same on replay.
func (a *detectorAgent) SelfAssess(outcome Outcome) float64 {
	if outcome.Status == OutcomeFailed {
		return 0
	}
	score := 1.0
	if outcome.Insufficient {
		// Not enough data to say anything: below any sane gate threshold
		// on the first attempt, so the orchestrator retries once in case
		// a prerequisite delivered a fuller record set.
		score = 0.3
	}
	if outcome.SampleSize > 0 && outcome.SampleSize < 50 {
		score -= 0.1
	}
	if score < 0 {
		return 0
	}
	return score
}

func summarizeReport(capability string, report detect.Report) string {
	if report.Insufficient {
		return fmt.Sprintf("%s: insufficient data (%d records, %d skipped)",
			capability, report.SampleSize, report.SkippedRecords)
	}
	if len(report.Findings) == 0 {
		return fmt.Sprintf("%s: no anomalies in %d records", capability, report.SampleSize)
	}
	max := finding.MaxSeverity(report.Findings)
	return fmt.Sprintf("%s: %d findings (max severity %s) in %d records",
		capability, len(report.Findings), max, report.SampleSize)
}

// NewStatisticalAgent analyzes first-digit distributions of contract and
// payment values against Benford's law.
func NewStatisticalAgent() (Agent, error) {
	detector := detect.NewBenfordDetector()
	return &detectorAgent{
		name:       "zumbi",
		capability: CapabilityStatistical,
		run: func(task Task) (detect.Report, error) {
			contracts := detector.DetectContracts(task.Records.Contracts)
			payments := detector.DetectPayments(task.Records.Payments)
			return combineReports(contracts, payments), nil
		},
	}, nil
}

// NewSpectralAgent detects periodic payment patterns via FFT.
func NewSpectralAgent() (Agent, error) {
	detector := detect.NewSpectralDetector()
	return &detectorAgent{
		name:       "oxossi",
		capability: CapabilitySpectral,
		run: func(task Task) (detect.Report, error) {
			return detector.DetectPayments(task.Records.Payments), nil
		},
	}, nil
}

// NewCartelAgent detects bid rotation and cartel communities from co-bidding
// behavior.
func NewCartelAgent() (Agent, error) {
	detector := detect.NewCartelDetector()
	return &detectorAgent{
		name:       "obaluaie",
		capability: CapabilityCartel,
		run: func(task Task) (detect.Report, error) {
			return detector.DetectBids(task.Records.Bids), nil
		},
	}, nil
}

// NewTemporalAgent detects off-hours activity, velocity spikes, and timestamp
// clusters.
func NewTemporalAgent() (Agent, error) {
	detector := detect.NewTemporalDetector()
	return &detectorAgent{
		name:       "anita",
		capability: CapabilityTemporal,
		run: func(task Task) (detect.Report, error) {
			return detector.DetectPayments(task.Records.Payments), nil
		},
	}, nil
}

// NewStructuringAgent detects threshold structuring, round-number payments,
// and circular flows.
func NewStructuringAgent() (Agent, error) {
	detector := detect.NewStructuringDetector()
	return &detectorAgent{
		name:       "lampiao",
		capability: CapabilityStructuring,
		run: func(task Task) (detect.Report, error) {
			return detector.DetectPayments(task.Records.Payments), nil
		},
	}, nil
}

func combineReports(reports ...detect.Report) detect.Report {
	var combined detect.Report
	insufficient := true
	for _, r := range reports {
		combined.Findings = append(combined.Findings, r.Findings...)
		combined.SampleSize += r.SampleSize
		combined.SkippedRecords += r.SkippedRecords
		if !r.Insufficient {
			insufficient = false
		}
	}
	combined.Insufficient = insufficient
	return combined
}
