package detect

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
)

func TestStructuring_JustBelowThresholdClusterFlagged(t *testing.T) {
	d := NewStructuringDetector()

	var payments []procurement.Payment
	base := time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ { // 8 of 12 just below 10k
		payments = append(payments, procurement.Payment{
			Key: fmt.Sprintf("b%02d", i), PayerID: "org-a", PayeeID: "shell-1",
			Value: 9400 + float64(i*50), PaidAt: base.AddDate(0, 0, i),
		})
	}
	for i := 8; i < 12; i++ {
		payments = append(payments, procurement.Payment{
			Key: fmt.Sprintf("b%02d", i), PayerID: "org-a", PayeeID: fmt.Sprintf("s%d", i),
			Value: 3210 + float64(i*117), PaidAt: base.AddDate(0, 0, i),
		})
	}

	report := d.DetectPayments(payments)

	var structuring *finding.Finding
	for i := range report.Findings {
		if report.Findings[i].Kind == finding.KindThresholdStructuring {
			structuring = &report.Findings[i]
		}
	}
	require.NotNil(t, structuring)
	assert.Equal(t, finding.SeverityCritical, structuring.Severity) // 67% in band
	assert.Contains(t, structuring.AffectedEntities, "shell-1")
}

func TestStructuring_RoundNumbersFlagged(t *testing.T) {
	d := NewStructuringDetector()

	var payments []procurement.Payment
	base := time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		value := 17000.0 // round multiple of 1000
		if i >= 8 {
			value = 17321.55
		}
		payments = append(payments, procurement.Payment{
			Key: fmt.Sprintf("r%02d", i), PayerID: "org-b", PayeeID: "vendor-x",
			Value: value, PaidAt: base.AddDate(0, 0, i),
		})
	}

	report := d.DetectPayments(payments)

	var round bool
	for _, f := range report.Findings {
		if f.Kind == finding.KindRoundNumber {
			round = true
		}
	}
	assert.True(t, round)
}

func TestStructuring_CircularFlowDetected(t *testing.T) {
	d := NewStructuringDetector()

	base := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	payments := []procurement.Payment{
		{Key: "c1", PayerID: "A", PayeeID: "B", Value: 50000, PaidAt: base},
		{Key: "c2", PayerID: "B", PayeeID: "C", Value: 48000, PaidAt: base.AddDate(0, 0, 10)},
		{Key: "c3", PayerID: "C", PayeeID: "A", Value: 46000, PaidAt: base.AddDate(0, 0, 20)},
	}
	// Unrelated filler to clear the minimum sample size.
	for i := 0; i < 8; i++ {
		payments = append(payments, procurement.Payment{
			Key: fmt.Sprintf("f%02d", i), PayerID: fmt.Sprintf("x%d", i), PayeeID: fmt.Sprintf("y%d", i),
			Value: 1234 + float64(i), PaidAt: base.AddDate(0, 0, i),
		})
	}

	report := d.DetectPayments(payments)

	var circular *finding.Finding
	for i := range report.Findings {
		if report.Findings[i].Kind == finding.KindCircularPayment {
			circular = &report.Findings[i]
		}
	}
	require.NotNil(t, circular)
	assert.Equal(t, finding.SeverityCritical, circular.Severity)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, circular.AffectedEntities)
}

func TestStructuring_CycleOutsideWindowIgnored(t *testing.T) {
	d := NewStructuringDetector()

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	payments := []procurement.Payment{
		{Key: "c1", PayerID: "A", PayeeID: "B", Value: 50000, PaidAt: base},
		{Key: "c2", PayerID: "B", PayeeID: "C", Value: 48000, PaidAt: base.AddDate(0, 5, 0)},
		{Key: "c3", PayerID: "C", PayeeID: "A", Value: 46000, PaidAt: base.AddDate(0, 10, 0)},
	}
	for i := 0; i < 8; i++ {
		payments = append(payments, procurement.Payment{
			Key: fmt.Sprintf("f%02d", i), PayerID: fmt.Sprintf("x%d", i), PayeeID: fmt.Sprintf("y%d", i),
			Value: 4321 + float64(i), PaidAt: base.AddDate(0, 0, i),
		})
	}

	report := d.DetectPayments(payments)
	for _, f := range report.Findings {
		assert.NotEqual(t, finding.KindCircularPayment, f.Kind)
	}
}

func TestStructuring_InsufficientData(t *testing.T) {
	d := NewStructuringDetector()

	report := d.DetectPayments([]procurement.Payment{
		{Key: "only", PayerID: "A", PayeeID: "B", Value: 100, PaidAt: time.Now()},
	})
	assert.True(t, report.Insufficient)
}
