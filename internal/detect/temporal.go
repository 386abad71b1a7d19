package detect

import (
	"fmt"
	"sort"
	"time"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/signal"
)

// TemporalDetector flags payments by off-hours timing, daily velocity spikes
// against a rolling baseline, and near-identical timestamps repeated across
// different entities.
type TemporalDetector struct {
	// MinPayments is the minimum number of valid payments required.
	MinPayments int

	// OffHoursStart/End bound the normal business window (hours, local time
	// of the record). Payments outside [Start, End) are off-hours.
	OffHoursStart int
	OffHoursEnd   int

	// OffHoursRatio is the proportion of off-hours payments that triggers a
	// finding.
	OffHoursRatio float64

	// VelocityWindow is the rolling baseline window in days.
	VelocityWindow int

	// VelocityZScore is the z-score above which a day's payment count is a
	// velocity spike.
	VelocityZScore float64

	// ClusterMinEntities is how many distinct payees sharing one timestamp
	// (minute resolution) triggers a clustering finding.
	ClusterMinEntities int
}

// NewTemporalDetector returns a detector with calibrated defaults.
func NewTemporalDetector() *TemporalDetector {
	return &TemporalDetector{
		MinPayments:        20,
		OffHoursStart:      6,
		OffHoursEnd:        22,
		OffHoursRatio:      0.15,
		VelocityWindow:     7,
		VelocityZScore:     3,
		ClusterMinEntities: 3,
	}
}

// DetectPayments runs all temporal checks. Payments failing validation are
// skipped and counted.
func (d *TemporalDetector) DetectPayments(payments []procurement.Payment) Report {
	valid := make([]procurement.Payment, 0, len(payments))
	skipped := 0
	for _, p := range payments {
		if err := p.Validate(); err != nil {
			skipped++
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) < d.MinPayments {
		return insufficientReport(len(valid), skipped)
	}

	report := Report{SampleSize: len(valid), SkippedRecords: skipped}
	report.Findings = append(report.Findings, d.offHours(valid)...)
	report.Findings = append(report.Findings, d.velocity(valid)...)
	report.Findings = append(report.Findings, d.timestampClusters(valid)...)
	return report
}

func (d *TemporalDetector) offHours(payments []procurement.Payment) []finding.Finding {
	offCount := 0
	entities := make(map[string]bool)
	for _, p := range payments {
		hour := p.PaidAt.Hour()
		weekend := p.PaidAt.Weekday() == time.Saturday || p.PaidAt.Weekday() == time.Sunday
		if hour < d.OffHoursStart || hour >= d.OffHoursEnd || weekend {
			offCount++
			entities[p.PayeeID] = true
		}
	}

	ratio := float64(offCount) / float64(len(payments))
	if ratio < d.OffHoursRatio {
		return nil
	}

	severity := finding.SeverityMedium
	if ratio >= 2*d.OffHoursRatio {
		severity = finding.SeverityHigh
	}
	f := finding.New(
		finding.KindTemporalAnomaly,
		fmt.Sprintf("%.0f%% of payments issued off-hours or on weekends", ratio*100),
		severity,
	).WithConfidence(ratio).WithEntities(keys(entities)...).WithEvidence(
		finding.NewEvidence("off-hours payment ratio", map[string]any{
			"off_hours_count": offCount,
			"total":           len(payments),
			"ratio":           ratio,
		}),
	)
	return []finding.Finding{f}
}

func (d *TemporalDetector) velocity(payments []procurement.Payment) []finding.Finding {
	counts := make(map[string]int)
	for _, p := range payments {
		counts[p.PaidAt.Format("2006-01-02")]++
	}
	if len(counts) <= d.VelocityWindow {
		return nil
	}

	days := make([]string, 0, len(counts))
	for day := range counts {
		days = append(days, day)
	}
	sort.Strings(days)

	var findings []finding.Finding
	for i := d.VelocityWindow; i < len(days); i++ {
		baseline := make([]float64, 0, d.VelocityWindow)
		for j := i - d.VelocityWindow; j < i; j++ {
			baseline = append(baseline, float64(counts[days[j]]))
		}
		mean := signal.Mean(baseline)
		sd := signal.StdDev(baseline)
		if sd == 0 {
			sd = 1
		}
		z := (float64(counts[days[i]]) - mean) / sd
		if z < d.VelocityZScore {
			continue
		}

		findings = append(findings, finding.New(
			finding.KindTemporalAnomaly,
			fmt.Sprintf("payment velocity spike on %s: %d payments vs rolling mean %.1f", days[i], counts[days[i]], mean),
			finding.SeverityMedium,
		).WithConfidence(z/(2*d.VelocityZScore)).WithEvidence(
			finding.NewEvidence("daily count vs rolling baseline", map[string]any{
				"day":           days[i],
				"count":         counts[days[i]],
				"baseline_mean": mean,
				"baseline_p95":  signal.Percentile(baseline, 95),
				"z_score":       z,
			}),
		))
	}
	return findings
}

func (d *TemporalDetector) timestampClusters(payments []procurement.Payment) []finding.Finding {
	byMinute := make(map[string]map[string]bool)
	for _, p := range payments {
		minute := p.PaidAt.Truncate(time.Minute).Format(time.RFC3339)
		if byMinute[minute] == nil {
			byMinute[minute] = make(map[string]bool)
		}
		byMinute[minute][p.PayeeID] = true
	}

	minutes := make([]string, 0, len(byMinute))
	for m := range byMinute {
		minutes = append(minutes, m)
	}
	sort.Strings(minutes)

	var findings []finding.Finding
	for _, minute := range minutes {
		payees := byMinute[minute]
		if len(payees) < d.ClusterMinEntities {
			continue
		}
		findings = append(findings, finding.New(
			finding.KindTemporalAnomaly,
			fmt.Sprintf("%d distinct payees share payment timestamp %s", len(payees), minute),
			finding.SeverityHigh,
		).WithConfidence(0.8).WithEntities(keys(payees)...).WithEvidence(
			finding.NewEvidence("near-identical timestamps across entities", map[string]any{
				"timestamp": minute,
				"payees":    len(payees),
			}),
		))
	}
	return findings
}
