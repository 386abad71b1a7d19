package detect

import (
	"fmt"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/signal"
)

// BenfordDetector tests the first-significant-digit distribution of monetary
// values against the logarithmic (Benford) distribution. Strong deviations
// suggest synthetic or manipulated values.
type BenfordDetector struct {
	// MinSamples is the minimum number of valid values required.
	MinSamples int

	// SignificanceThreshold gates on the raw chi-square statistic: below
	// it the deviation is noise and nothing is flagged. With 8 degrees of
	// freedom, 20.09 corresponds to p < 0.01.
	SignificanceThreshold float64

	// Severity thresholds on Cramér's V effect size. Unlike raw
	// chi-square, V does not grow with sample size, so the same data
	// shape maps to the same severity at any n. Uniform first digits sit
	// near 0.22; concentrating 80% of values on one digit near 0.39; a
	// single-digit distribution well above 1.
	MediumThreshold   float64
	HighThreshold     float64
	CriticalThreshold float64
}

// NewBenfordDetector returns a detector with calibrated defaults.
func NewBenfordDetector() *BenfordDetector {
	return &BenfordDetector{
		MinSamples:            30,
		SignificanceThreshold: 20.09,
		MediumThreshold:       0.15,
		HighThreshold:         0.30,
		CriticalThreshold:     0.50,
	}
}

// DetectContracts runs the digit test over contract values. Contracts failing
// validation are skipped and counted.
func (d *BenfordDetector) DetectContracts(contracts []procurement.Contract) Report {
	values := make([]float64, 0, len(contracts))
	entities := make(map[string]bool)
	skipped := 0
	for _, c := range contracts {
		if err := c.Validate(); err != nil {
			skipped++
			continue
		}
		values = append(values, c.Value)
		if c.SupplierID != "" {
			entities[c.SupplierID] = true
		}
	}
	return d.detect(values, keys(entities), skipped)
}

// DetectPayments runs the digit test over payment values.
func (d *BenfordDetector) DetectPayments(payments []procurement.Payment) Report {
	values := make([]float64, 0, len(payments))
	entities := make(map[string]bool)
	skipped := 0
	for _, p := range payments {
		if err := p.Validate(); err != nil {
			skipped++
			continue
		}
		values = append(values, p.Value)
		if p.PayeeID != "" {
			entities[p.PayeeID] = true
		}
	}
	return d.detect(values, keys(entities), skipped)
}

func (d *BenfordDetector) detect(values []float64, entities []string, skipped int) Report {
	if len(values) < d.MinSamples {
		return insufficientReport(len(values), skipped)
	}

	var observed [9]float64
	usable := 0
	for _, v := range values {
		digit := signal.FirstSignificantDigit(v)
		if digit == 0 {
			skipped++
			continue
		}
		observed[digit-1]++
		usable++
	}
	if usable < d.MinSamples {
		return insufficientReport(usable, skipped)
	}

	expectedProp := signal.BenfordExpected()
	expected := make([]float64, 9)
	for i, p := range expectedProp {
		expected[i] = p * float64(usable)
	}

	stat := signal.ChiSquare(observed[:], expected)
	effect := signal.CramersV(stat, usable, 8)
	report := Report{SampleSize: usable, SkippedRecords: skipped}

	if stat < d.SignificanceThreshold {
		return report
	}
	severity, flagged := d.severityFor(effect)
	if !flagged {
		return report
	}

	confidence := effect / d.CriticalThreshold
	f := finding.New(
		finding.KindDigitDistribution,
		fmt.Sprintf("first-digit distribution deviates from Benford's law (Cramér's V %.2f over %d values)", effect, usable),
		severity,
	).WithConfidence(confidence).WithEntities(entities...).WithEvidence(
		finding.NewEvidence("chi-square test against logarithmic distribution", map[string]any{
			"chi_square":  stat,
			"cramers_v":   effect,
			"sample_size": usable,
			"observed":    observed[:],
			"expected":    expected,
		}),
	)

	report.Findings = []finding.Finding{f}
	return report
}

func (d *BenfordDetector) severityFor(effect float64) (finding.Severity, bool) {
	switch {
	case effect >= d.CriticalThreshold:
		return finding.SeverityCritical, true
	case effect >= d.HighThreshold:
		return finding.SeverityHigh, true
	case effect >= d.MediumThreshold:
		return finding.SeverityMedium, true
	default:
		return "", false
	}
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
