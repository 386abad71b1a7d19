package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

func TestDefaultCatalog(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	names := catalog.Names()
	assert.Contains(t, names, CapabilityStatistical)
	assert.Contains(t, names, CapabilityReport)

	report, ok := catalog.Get(CapabilityReport)
	require.True(t, ok)
	assert.True(t, report.Optional)
	assert.Contains(t, report.Prerequisites, CapabilityStatistical)

	stat, ok := catalog.Get(CapabilityStatistical)
	require.True(t, ok)
	assert.Contains(t, stat.Depths, types.DepthQuick)
	assert.Empty(t, stat.Prerequisites)
}

func TestCatalog_RejectsUnknownPrerequisite(t *testing.T) {
	_, err := parseCatalog([]byte(`
capabilities:
  - name: a
    prerequisites: [missing]
`))
	require.Error(t, err)

	var engineErr *types.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, types.CONFIG_VALIDATION_FAILED, engineErr.Code)
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	registry := NewRegistry(catalog)
	require.NoError(t, RegisterBuiltins(registry, nil))

	assert.Len(t, registry.Capabilities(), len(catalog.Names()))
	assert.True(t, registry.Health(context.Background()).IsHealthy())

	a, err := registry.Create(CapabilityCartel)
	require.NoError(t, err)
	assert.Equal(t, CapabilityCartel, a.Capability())

	_, err = registry.Create("no-such-capability")
	require.Error(t, err)
}

func TestRegistry_RejectsOffCatalogCapability(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	registry := NewRegistry(catalog)
	err = registry.Register("made-up", NewStatisticalAgent)
	require.Error(t, err)
}

func TestDetectorAgent_HandleProducesFindings(t *testing.T) {
	a, err := NewStatisticalAgent()
	require.NoError(t, err)

	records := &procurement.RecordSet{}
	// First digit heavily skewed to 9: clear Benford deviation.
	signedAt := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		records.Contracts = append(records.Contracts, procurement.Contract{
			Key:        fmt.Sprintf("c%03d", i),
			SupplierID: "sup-1",
			OrganCode:  "26000",
			Value:      90000 + float64(i*7),
			SignedAt:   signedAt,
		})
	}

	task := NewTask(types.NewID(), CapabilityStatistical, procurement.Query{}).
		WithRecords(records)

	outcome, err := a.Handle(context.Background(), task, nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, outcome.Status)
	assert.NotEmpty(t, outcome.Findings)
	assert.Equal(t, 1.0, a.SelfAssess(outcome))
}

func TestDetectorAgent_NilRecordsFailsOutcome(t *testing.T) {
	a, err := NewSpectralAgent()
	require.NoError(t, err)

	task := NewTask(types.NewID(), CapabilitySpectral, procurement.Query{})

	outcome, err := a.Handle(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.Zero(t, a.SelfAssess(outcome))
}

func TestDetectorAgent_InsufficientDataScoresLow(t *testing.T) {
	a, err := NewTemporalAgent()
	require.NoError(t, err)

	records := &procurement.RecordSet{
		Payments: []procurement.Payment{{
			Key: "p1", PayerID: "a", PayeeID: "b", Value: 100,
			PaidAt: time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC),
		}},
	}
	task := NewTask(types.NewID(), CapabilityTemporal, procurement.Query{}).
		WithRecords(records)

	outcome, err := a.Handle(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome.Status)
	assert.True(t, outcome.Insufficient)
	assert.Less(t, a.SelfAssess(outcome), 0.8)
}

func TestLegalAgent_CeilingViolation(t *testing.T) {
	a, err := NewLegalAgent()
	require.NoError(t, err)

	signedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	records := &procurement.RecordSet{}
	// Dispensa triple the ceiling plus compliant filler.
	records.Contracts = append(records.Contracts, procurement.Contract{
		Key: "big", SupplierID: "sup-9", OrganCode: "20000",
		Value: 360000, Modality: "Dispensa", SignedAt: signedAt,
	})
	for i := 0; i < 6; i++ {
		records.Contracts = append(records.Contracts, procurement.Contract{
			Key: fmt.Sprintf("ok%d", i), SupplierID: "sup-1", OrganCode: "20000",
			Value: 50000, Modality: "Pregao", SignedAt: signedAt,
		})
	}

	task := NewTask(types.NewID(), CapabilityLegal, procurement.Query{}).
		WithRecords(records)

	outcome, err := a.Handle(context.Background(), task, nil)
	require.NoError(t, err)
	require.NotEmpty(t, outcome.Findings)

	var ceiling *finding.Finding
	for i := range outcome.Findings {
		if strings.Contains(outcome.Findings[i].Title, "ceiling") {
			ceiling = &outcome.Findings[i]
		}
	}
	require.NotNil(t, ceiling)
	assert.Equal(t, finding.SeverityCritical, ceiling.Severity)
	assert.Contains(t, ceiling.AffectedEntities, "sup-9")
}

func TestLegalAgent_AmendmentCap(t *testing.T) {
	signedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	contracts := []procurement.Contract{
		{Key: "amended", SupplierID: "sup-2", OrganCode: "21000",
			Value: 100000, AmendmentValue: 40000, Modality: "Pregao", SignedAt: signedAt},
	}
	for i := 0; i < 5; i++ {
		contracts = append(contracts, procurement.Contract{
			Key: fmt.Sprintf("plain%d", i), SupplierID: "sup-3", OrganCode: "21000",
			Value: 80000, Modality: "Pregao", SignedAt: signedAt,
		})
	}

	report := checkCompliance(contracts)

	var amendment bool
	for _, f := range report.Findings {
		if strings.Contains(f.Title, "amendments") {
			amendment = true
			assert.Equal(t, finding.SeverityHigh, f.Severity)
		}
	}
	assert.True(t, amendment)
}

func TestLegalAgent_DispensaOveruse(t *testing.T) {
	signedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var contracts []procurement.Contract
	for i := 0; i < 8; i++ {
		modality := "Dispensa"
		if i >= 6 {
			modality = "Pregao"
		}
		contracts = append(contracts, procurement.Contract{
			Key: fmt.Sprintf("d%d", i), SupplierID: fmt.Sprintf("sup-%d", i),
			OrganCode: "30000", Value: 20000, Modality: modality, SignedAt: signedAt,
		})
	}

	report := checkCompliance(contracts)

	var overuse bool
	for _, f := range report.Findings {
		if strings.Contains(f.Title, "without bidding") {
			overuse = true
			assert.Equal(t, finding.SeverityHigh, f.Severity) // 75% no-bid
		}
	}
	assert.True(t, overuse)
}

func TestReportAgent_TemplateFallback(t *testing.T) {
	factory := NewReportAgent(nil)
	a, err := factory()
	require.NoError(t, err)

	prior := []Outcome{
		{
			Capability: CapabilityStatistical,
			Status:     OutcomeSucceeded,
			Summary:    "statistical-analysis: 1 findings (max severity high) in 120 records",
			Findings: []finding.Finding{
				finding.New(finding.KindDigitDistribution, "digit distribution deviates", finding.SeverityHigh).
					WithEntities("sup-1"),
			},
		},
		{Capability: CapabilityCartel, Status: OutcomeFailed, Error: "no bids in range"},
	}

	task := NewTask(types.NewID(), CapabilityReport, procurement.Query{})
	outcome, err := a.Handle(context.Background(), task, prior)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, outcome.Status)
	assert.Contains(t, outcome.Summary, "digit distribution deviates")
	assert.Contains(t, outcome.Summary, "Analysis failed")
	assert.Equal(t, 1.0, a.SelfAssess(outcome))
}

func TestReportAgent_EmptyNarrativeScoresZero(t *testing.T) {
	factory := NewReportAgent(nil)
	a, err := factory()
	require.NoError(t, err)

	outcome := Outcome{Status: OutcomeSucceeded, Summary: "   "}
	assert.Zero(t, a.SelfAssess(outcome))
}

func TestTask_RetryCarriesFeedback(t *testing.T) {
	task := NewTask(types.NewID(), CapabilityStatistical, procurement.Query{})
	require.Equal(t, 1, task.Attempt)

	retried := task.Retry("sample too small, widen the query window")
	assert.Equal(t, 2, retried.Attempt)
	assert.Equal(t, []string{"sample too small, widen the query window"}, retried.Feedback)
	// Original task untouched.
	assert.Equal(t, 1, task.Attempt)
	assert.Empty(t, task.Feedback)
}
