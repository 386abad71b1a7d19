package detect

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
)

func TestSpectral_PeriodicSeriesFlagged(t *testing.T) {
	d := NewSpectralDetector()

	// Identical payment every 32 days for 16 cycles, daily buckets.
	series := make([]float64, 512)
	for i := 0; i < len(series); i += 32 {
		series[i] = 9500
	}

	report := d.DetectSeries(series, []string{"11222333000144"})
	require.Len(t, report.Findings, 1)

	f := report.Findings[0]
	assert.Equal(t, finding.KindSpectralPeriodicity, f.Kind)
	assert.True(t, f.Severity.AtLeast(finding.SeverityMedium))
	assert.Equal(t, []string{"11222333000144"}, f.AffectedEntities)
}

func TestSpectral_RandomNoiseNotFlagged(t *testing.T) {
	d := NewSpectralDetector()
	rng := rand.New(rand.NewSource(3))

	series := make([]float64, 512)
	for i := range series {
		series[i] = rng.Float64() * 10000
	}

	report := d.DetectSeries(series, nil)
	assert.Empty(t, report.Findings)
	assert.False(t, report.Insufficient)
}

func TestSpectral_ShortSeriesInsufficient(t *testing.T) {
	d := NewSpectralDetector()

	report := d.DetectSeries([]float64{1, 2, 3}, nil)
	assert.True(t, report.Insufficient)
	assert.Empty(t, report.Findings)
}

func TestSpectral_DetectPaymentsBucketsAndSkips(t *testing.T) {
	d := NewSpectralDetector()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	var payments []procurement.Payment
	// Monthly (30-day) identical payments over 4 years of daily buckets.
	for i := 0; i < 48; i++ {
		payments = append(payments, procurement.Payment{
			Key:     fmt.Sprintf("p%02d", i),
			PayerID: "26000",
			PayeeID: "11222333000144",
			Value:   9500,
			PaidAt:  start.Add(time.Duration(i) * 30 * 24 * time.Hour),
		})
	}
	// One malformed record.
	payments = append(payments, procurement.Payment{Key: "bad", Value: 0})

	report := d.DetectPayments(payments)
	assert.Equal(t, 1, report.SkippedRecords)
	require.NotEmpty(t, report.Findings)
	assert.Equal(t, finding.KindSpectralPeriodicity, report.Findings[0].Kind)
}
