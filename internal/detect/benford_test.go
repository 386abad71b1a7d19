package detect

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
)

func contractWithValue(key string, value float64) procurement.Contract {
	return procurement.Contract{
		Key:        key,
		SupplierID: "11222333000144",
		OrganCode:  "26000",
		Value:      value,
		SignedAt:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestBenford_InsufficientData(t *testing.T) {
	d := NewBenfordDetector()

	contracts := []procurement.Contract{
		contractWithValue("c1", 1200),
		contractWithValue("c2", 3400),
	}
	report := d.DetectContracts(contracts)

	assert.True(t, report.Insufficient)
	assert.Empty(t, report.Findings)
	assert.Equal(t, 2, report.SampleSize)
}

func TestBenford_SkipsMalformedRecords(t *testing.T) {
	d := NewBenfordDetector()
	d.MinSamples = 3

	contracts := []procurement.Contract{
		contractWithValue("c1", 1200),
		contractWithValue("c2", 2400),
		contractWithValue("c3", 3100),
		{Key: "", Value: 500},       // missing key
		{Key: "c5", Value: -10, SignedAt: time.Now()}, // negative value
	}
	report := d.DetectContracts(contracts)

	assert.Equal(t, 2, report.SkippedRecords)
	assert.Equal(t, 3, report.SampleSize)
}

func TestBenford_UniformRandomNeverCritical(t *testing.T) {
	// Uniform 4-digit integers spread first digits evenly: a real but mild
	// deviation from Benford. Severity must not climb with sample size.
	for _, n := range []int{200, 1000, 5000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			d := NewBenfordDetector()
			rng := rand.New(rand.NewSource(7))

			contracts := make([]procurement.Contract, n)
			for i := range contracts {
				contracts[i] = contractWithValue(fmt.Sprintf("u%04d", i), float64(1000+rng.Intn(9000)))
			}
			report := d.DetectContracts(contracts)

			require.NotEmpty(t, report.Findings)
			for _, f := range report.Findings {
				assert.Equal(t, finding.SeverityMedium, f.Severity)
				assert.Less(t, f.Confidence, 1.0)
			}
		})
	}
}

func TestBenford_ManipulatedDistributionFlagsMediumOrWorse(t *testing.T) {
	d := NewBenfordDetector()
	rng := rand.New(rand.NewSource(7))

	contracts := make([]procurement.Contract, 200)
	for i := range contracts {
		var value float64
		if i < 160 { // 80% of values start with digit 1
			value = float64(1000 + rng.Intn(1000))
		} else {
			value = float64(2000 + rng.Intn(8000))
		}
		contracts[i] = contractWithValue(fmt.Sprintf("m%03d", i), value)
	}
	report := d.DetectContracts(contracts)

	require.NotEmpty(t, report.Findings)
	f := report.Findings[0]
	assert.Equal(t, finding.KindDigitDistribution, f.Kind)
	assert.True(t, f.Severity.AtLeast(finding.SeverityMedium))
	assert.GreaterOrEqual(t, f.Confidence, 0.0)
	assert.LessOrEqual(t, f.Confidence, 1.0)
}

func TestBenford_CompliantDataNotFlagged(t *testing.T) {
	d := NewBenfordDetector()
	rng := rand.New(rand.NewSource(11))

	// Log-uniform values follow Benford closely.
	contracts := make([]procurement.Contract, 300)
	for i := range contracts {
		exp := 1 + rng.Float64()*3 // 10 .. 10^4
		contracts[i] = contractWithValue(fmt.Sprintf("k%03d", i), math.Pow(10, exp))
	}
	report := d.DetectContracts(contracts)

	assert.Empty(t, report.Findings)
	assert.False(t, report.Insufficient)
}
