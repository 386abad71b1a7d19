package detect

import (
	"fmt"
	"sort"
	"time"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/signal"
)

// SpectralDetector transforms a time-indexed spend series into the frequency
// domain and flags dominant frequencies whose amplitude clears a noise-floor
// multiple, indicating artificial periodic structuring such as recurring
// just-under-threshold payments.
type SpectralDetector struct {
	// MinSeriesLength is the minimum number of time buckets required.
	MinSeriesLength int

	// NoiseFloorMultiple is how many times above the median spectral
	// amplitude the dominant peak must be to count as periodic.
	NoiseFloorMultiple float64

	// Bucket is the time-bucketing interval used when deriving a series
	// from raw payments.
	Bucket time.Duration
}

// NewSpectralDetector returns a detector with calibrated defaults: daily
// bucketing and a 6x noise-floor requirement.
func NewSpectralDetector() *SpectralDetector {
	return &SpectralDetector{
		MinSeriesLength:    32,
		NoiseFloorMultiple: 6,
		Bucket:             24 * time.Hour,
	}
}

// DetectPayments buckets payment values into a time series and runs the
// spectral test. Payments failing validation are skipped and counted.
func (d *SpectralDetector) DetectPayments(payments []procurement.Payment) Report {
	valid := make([]procurement.Payment, 0, len(payments))
	entities := make(map[string]bool)
	skipped := 0
	for _, p := range payments {
		if err := p.Validate(); err != nil {
			skipped++
			continue
		}
		valid = append(valid, p)
		if p.PayeeID != "" {
			entities[p.PayeeID] = true
		}
	}
	if len(valid) == 0 {
		return insufficientReport(0, skipped)
	}

	series := bucketSeries(valid, d.Bucket)
	report := d.DetectSeries(series, keys(entities))
	report.SkippedRecords += skipped
	return report
}

// DetectSeries runs the spectral test directly on a pre-bucketed series.
// SampleSize in the report is the series length.
func (d *SpectralDetector) DetectSeries(series []float64, entities []string) Report {
	if len(series) < d.MinSeriesLength {
		return insufficientReport(len(series), 0)
	}

	peakIdx, amplitude, noiseFloor, ok := signal.DominantFrequency(series)
	report := Report{SampleSize: len(series)}
	if !ok {
		report.Insufficient = true
		return report
	}

	// A zero noise floor with a real peak is perfect periodicity.
	periodic := false
	ratio := 0.0
	if noiseFloor > 0 {
		ratio = amplitude / noiseFloor
		periodic = ratio >= d.NoiseFloorMultiple
	} else if amplitude > 1e-9 {
		ratio = 2 * d.NoiseFloorMultiple
		periodic = true
	}
	if !periodic {
		return report
	}

	// PowerSpectrum index k is FFT bin k+1 of the padded series.
	padded := paddedLength(len(series))
	periodSamples := float64(padded) / float64(peakIdx+1)

	severity := finding.SeverityMedium
	if ratio >= 2*d.NoiseFloorMultiple {
		severity = finding.SeverityHigh
	}

	f := finding.New(
		finding.KindSpectralPeriodicity,
		fmt.Sprintf("dominant periodic component with period of ~%.0f buckets (%.1fx noise floor)", periodSamples, ratio),
		severity,
	).WithConfidence(ratio/(4*d.NoiseFloorMultiple)).WithEntities(entities...).WithEvidence(
		finding.NewEvidence("spectral peak over noise floor", map[string]any{
			"peak_amplitude":  amplitude,
			"noise_floor":     noiseFloor,
			"ratio":           ratio,
			"period_buckets":  periodSamples,
			"series_length":   len(series),
		}),
	)

	report.Findings = []finding.Finding{f}
	return report
}

// bucketSeries sums payment values into fixed-width time buckets spanning
// the full payment range, including empty buckets.
func bucketSeries(payments []procurement.Payment, bucket time.Duration) []float64 {
	if len(payments) == 0 || bucket <= 0 {
		return nil
	}

	sorted := make([]procurement.Payment, len(payments))
	copy(sorted, payments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PaidAt.Before(sorted[j].PaidAt) })

	start := sorted[0].PaidAt
	end := sorted[len(sorted)-1].PaidAt
	n := int(end.Sub(start)/bucket) + 1
	series := make([]float64, n)
	for _, p := range sorted {
		idx := int(p.PaidAt.Sub(start) / bucket)
		series[idx] += p.Value
	}
	return series
}

func paddedLength(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
