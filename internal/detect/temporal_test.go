package detect

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
)

func businessPayment(i int, at time.Time) procurement.Payment {
	return procurement.Payment{
		Key:     fmt.Sprintf("pay%03d", i),
		PayerID: "26000",
		PayeeID: fmt.Sprintf("supplier%02d", i%5),
		Value:   5000 + float64(i*13),
		PaidAt:  at,
	}
}

func TestTemporal_OffHoursFlagged(t *testing.T) {
	d := NewTemporalDetector()

	var payments []procurement.Payment
	// Monday 2024-01-08; 12 during business hours, 8 at 3am.
	base := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		payments = append(payments, businessPayment(i, base.Add(time.Duration(i)*time.Hour/2)))
	}
	for i := 12; i < 20; i++ {
		night := time.Date(2024, 1, 8+i%3, 3, 10+i, 0, 0, time.UTC)
		payments = append(payments, businessPayment(i, night))
	}

	report := d.DetectPayments(payments)

	var offHours bool
	for _, f := range report.Findings {
		if f.Kind == finding.KindTemporalAnomaly && f.Severity.AtLeast(finding.SeverityMedium) {
			offHours = true
		}
	}
	assert.True(t, offHours)
}

func TestTemporal_BusinessHoursNotFlagged(t *testing.T) {
	d := NewTemporalDetector()

	var payments []procurement.Payment
	for i := 0; i < 30; i++ {
		// Spread across weekdays, always mid-morning, distinct payees to
		// avoid timestamp clustering.
		day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC).AddDate(0, 0, (i%5)+7*(i/5))
		at := day.Add(10*time.Hour + time.Duration(i)*7*time.Minute)
		p := businessPayment(i, at)
		p.PayeeID = fmt.Sprintf("supplier%02d", i)
		payments = append(payments, p)
	}

	report := d.DetectPayments(payments)
	assert.Empty(t, report.Findings)
}

func TestTemporal_VelocitySpike(t *testing.T) {
	d := NewTemporalDetector()

	var payments []procurement.Payment
	idx := 0
	// Ten quiet weekdays with 2 payments each, then one day with 30.
	for day := 0; day < 10; day++ {
		date := time.Date(2024, 4, 1+day, 11, 0, 0, 0, time.UTC) // Apr 2024: 1st is Monday
		for k := 0; k < 2; k++ {
			p := businessPayment(idx, date.Add(time.Duration(k)*2*time.Hour))
			p.PayeeID = fmt.Sprintf("s%03d", idx)
			payments = append(payments, p)
			idx++
		}
	}
	burst := time.Date(2024, 4, 11, 10, 0, 0, 0, time.UTC)
	for k := 0; k < 30; k++ {
		p := businessPayment(idx, burst.Add(time.Duration(k)*9*time.Minute))
		p.PayeeID = fmt.Sprintf("s%03d", idx)
		payments = append(payments, p)
		idx++
	}

	report := d.DetectPayments(payments)

	var spike bool
	for _, f := range report.Findings {
		if f.Kind != finding.KindTemporalAnomaly {
			continue
		}
		spike = true
		if len(f.Evidence) == 0 {
			continue
		}
		// The quiet baseline never exceeds 2 payments per day.
		if p95, ok := f.Evidence[0].Data["baseline_p95"].(float64); ok {
			assert.LessOrEqual(t, p95, 2.0)
		} else {
			t.Error("velocity evidence missing baseline_p95")
		}
	}
	assert.True(t, spike)
}

func TestTemporal_TimestampClusterAcrossEntities(t *testing.T) {
	d := NewTemporalDetector()

	at := time.Date(2024, 5, 7, 14, 30, 12, 0, time.UTC)
	var payments []procurement.Payment
	for i := 0; i < 4; i++ {
		p := businessPayment(i, at)
		p.PayeeID = fmt.Sprintf("distinct%d", i)
		payments = append(payments, p)
	}
	// Filler to clear the minimum sample size, spread out.
	for i := 4; i < 24; i++ {
		day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		p := businessPayment(i, day.Add(9*time.Hour+time.Duration(i)*11*time.Minute))
		p.PayeeID = fmt.Sprintf("filler%d", i)
		payments = append(payments, p)
	}

	report := d.DetectPayments(payments)

	var clustered bool
	for _, f := range report.Findings {
		if f.Severity == finding.SeverityHigh {
			clustered = true
			assert.Len(t, f.AffectedEntities, 4)
		}
	}
	assert.True(t, clustered)
}

func TestTemporal_InsufficientData(t *testing.T) {
	d := NewTemporalDetector()

	report := d.DetectPayments([]procurement.Payment{
		businessPayment(0, time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)),
	})
	assert.True(t, report.Insufficient)
}
