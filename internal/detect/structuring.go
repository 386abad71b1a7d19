package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
)

// StructuringDetector applies money-laundering heuristics to payment flows:
// amounts clustered just below reporting thresholds, round-number payments,
// and circular fund flows within a bounded hop count and time window.
type StructuringDetector struct {
	// MinPayments is the minimum number of valid payments required.
	MinPayments int

	// ReportingThreshold is the value above which payments draw mandatory
	// scrutiny; amounts just below it are suspicious when clustered.
	ReportingThreshold float64

	// BandRatio defines "just below": values in
	// [Threshold*(1-BandRatio), Threshold) fall in the band.
	BandRatio float64

	// BandClusterRatio is the proportion of payments inside the band that
	// triggers a finding.
	BandClusterRatio float64

	// RoundRatio is the proportion of round-number payments (multiples of
	// RoundUnit) that triggers a finding.
	RoundRatio float64
	RoundUnit  float64

	// MaxHops bounds circular-flow search (A->B->C->A is 3 hops).
	MaxHops int

	// CycleWindow bounds how far apart the first and last payment of a
	// cycle may be.
	CycleWindow time.Duration
}

// NewStructuringDetector returns a detector with defaults calibrated to
// Brazilian reporting practice (R$ 10k cash-transaction reporting line).
func NewStructuringDetector() *StructuringDetector {
	return &StructuringDetector{
		MinPayments:        10,
		ReportingThreshold: 10_000,
		BandRatio:          0.1,
		BandClusterRatio:   0.3,
		RoundRatio:         0.5,
		RoundUnit:          1_000,
		MaxHops:            4,
		CycleWindow:        90 * 24 * time.Hour,
	}
}

// DetectPayments runs all structuring heuristics. Payments failing
// validation are skipped and counted.
func (d *StructuringDetector) DetectPayments(payments []procurement.Payment) Report {
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
	report.Findings = append(report.Findings, d.thresholdBand(valid)...)
	report.Findings = append(report.Findings, d.roundNumbers(valid)...)
	report.Findings = append(report.Findings, d.circularFlows(valid)...)
	return report
}

func (d *StructuringDetector) thresholdBand(payments []procurement.Payment) []finding.Finding {
	lower := d.ReportingThreshold * (1 - d.BandRatio)
	inBand := 0
	entities := make(map[string]bool)
	for _, p := range payments {
		if p.Value >= lower && p.Value < d.ReportingThreshold {
			inBand++
			entities[p.PayeeID] = true
		}
	}

	ratio := float64(inBand) / float64(len(payments))
	if ratio < d.BandClusterRatio {
		return nil
	}

	severity := finding.SeverityHigh
	if ratio >= 2*d.BandClusterRatio {
		severity = finding.SeverityCritical
	}
	f := finding.New(
		finding.KindThresholdStructuring,
		fmt.Sprintf("%.0f%% of payments fall just below the %.0f reporting threshold", ratio*100, d.ReportingThreshold),
		severity,
	).WithConfidence(ratio).WithEntities(keys(entities)...).WithEvidence(
		finding.NewEvidence("just-below-threshold clustering", map[string]any{
			"band_lower":  lower,
			"threshold":   d.ReportingThreshold,
			"in_band":     inBand,
			"total":       len(payments),
			"ratio":       ratio,
		}),
	)
	return []finding.Finding{f}
}

func (d *StructuringDetector) roundNumbers(payments []procurement.Payment) []finding.Finding {
	round := 0
	for _, p := range payments {
		if math.Mod(p.Value, d.RoundUnit) == 0 {
			round++
		}
	}

	ratio := float64(round) / float64(len(payments))
	if ratio < d.RoundRatio {
		return nil
	}

	f := finding.New(
		finding.KindRoundNumber,
		fmt.Sprintf("%.0f%% of payments are exact multiples of %.0f", ratio*100, d.RoundUnit),
		finding.SeverityMedium,
	).WithConfidence(ratio).WithEvidence(
		finding.NewEvidence("round-number payment ratio", map[string]any{
			"round_count": round,
			"total":       len(payments),
			"unit":        d.RoundUnit,
		}),
	)
	return []finding.Finding{f}
}

// circularFlows searches the directed payer->payee graph for cycles of at
// most MaxHops edges whose payments all fall within CycleWindow.
func (d *StructuringDetector) circularFlows(payments []procurement.Payment) []finding.Finding {
	type edge struct {
		to     string
		paidAt time.Time
		value  float64
	}
	outgoing := make(map[string][]edge)
	for _, p := range payments {
		if p.PayerID == "" || p.PayeeID == "" || p.PayerID == p.PayeeID {
			continue
		}
		outgoing[p.PayerID] = append(outgoing[p.PayerID], edge{to: p.PayeeID, paidAt: p.PaidAt, value: p.Value})
	}

	seenCycles := make(map[string]bool)
	var findings []finding.Finding

	var walk func(origin string, current string, path []string, first, last time.Time, total float64)
	walk = func(origin, current string, path []string, first, last time.Time, total float64) {
		if len(path) > d.MaxHops {
			return
		}
		for _, e := range outgoing[current] {
			lo, hi := first, last
			if e.paidAt.Before(lo) {
				lo = e.paidAt
			}
			if e.paidAt.After(hi) {
				hi = e.paidAt
			}
			if hi.Sub(lo) > d.CycleWindow {
				continue
			}

			if e.to == origin && len(path) >= 3 {
				cycle := canonicalCycle(path)
				if seenCycles[cycle] {
					continue
				}
				seenCycles[cycle] = true
				findings = append(findings, finding.New(
					finding.KindCircularPayment,
					fmt.Sprintf("circular fund flow %s -> %s (%d hops)", strings.Join(path, " -> "), origin, len(path)),
					finding.SeverityCritical,
				).WithConfidence(0.9).WithEntities(path...).WithEvidence(
					finding.NewEvidence("payment cycle", map[string]any{
						"path":        path,
						"hops":        len(path),
						"total_value": total + e.value,
						"window_days": hi.Sub(lo).Hours() / 24,
					}),
				))
				continue
			}

			if containsString(path, e.to) {
				continue
			}
			next := make([]string, len(path), len(path)+1)
			copy(next, path)
			walk(origin, e.to, append(next, e.to), lo, hi, total+e.value)
		}
	}

	origins := make([]string, 0, len(outgoing))
	for o := range outgoing {
		origins = append(origins, o)
	}
	sort.Strings(origins)
	for _, origin := range origins {
		for _, e := range outgoing[origin] {
			walk(origin, e.to, []string{origin, e.to}, e.paidAt, e.paidAt, e.value)
		}
	}
	return findings
}

// canonicalCycle normalizes a cycle path so rotations of the same cycle
// de-duplicate to one finding.
func canonicalCycle(path []string) string {
	if len(path) == 0 {
		return ""
	}
	minIdx := 0
	for i, n := range path {
		if n < path[minIdx] {
			minIdx = i
		}
	}
	rotated := make([]string, 0, len(path))
	for i := 0; i < len(path); i++ {
		rotated = append(rotated, path[(minIdx+i)%len(path)])
	}
	return strings.Join(rotated, ">")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
