package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/llm"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// reportAgent synthesizes all prior capability outcomes into a narrative
// report. It prefers the configured LLM completer and falls back to a
// deterministic template so report synthesis never depends on an external
// service being up.
type reportAgent struct {
	completer llm.Completer
}

// NewReportAgent builds the report synthesis agent. A nil completer means
// template-only operation.
func NewReportAgent(completer llm.Completer) Factory {
	return func() (Agent, error) {
		return &reportAgent{completer: completer}, nil
	}
}

func (a *reportAgent) Name() string       { return "tiradentes" }
func (a *reportAgent) Capability() string { return CapabilityReport }

func (a *reportAgent) Start(ctx context.Context) error { return nil }
func (a *reportAgent) Stop(ctx context.Context) error  { return nil }

func (a *reportAgent) Health(ctx context.Context) types.HealthStatus {
	if a.completer == nil {
		return types.Degraded("report synthesis running on template fallback")
	}
	return types.Healthy("tiradentes")
}

func (a *reportAgent) Handle(ctx context.Context, task Task, prior []Outcome) (Outcome, error) {
	outcome := NewOutcome(task)

	narrative, err := a.synthesize(ctx, prior)
	if err != nil {
		// LLM failure degrades to the template, it does not fail the node.
		narrative = templateReport(prior)
	}
	outcome.SampleSize = len(prior)
	outcome.Complete(nil, narrative)
	return outcome, nil
}

// SelfAssess penalizes an empty narrative and reports missing inputs.
func (a *reportAgent) SelfAssess(outcome Outcome) float64 {
	if outcome.Status == OutcomeFailed || strings.TrimSpace(outcome.Summary) == "" {
		return 0
	}
	if outcome.SampleSize == 0 {
		return 0.4
	}
	return 1.0
}

func (a *reportAgent) synthesize(ctx context.Context, prior []Outcome) (string, error) {
	if a.completer == nil {
		return templateReport(prior), nil
	}
	prompt := reportPrompt(prior)
	return a.completer.Complete(ctx, prompt)
}

func reportPrompt(prior []Outcome) string {
	var b strings.Builder
	b.WriteString("You are an auditor summarizing a public procurement investigation.\n")
	b.WriteString("Write a concise report in Portuguese covering the findings below.\n")
	b.WriteString("State severity, affected entities, and evidence. Do not invent facts.\n\n")
	b.WriteString(templateReport(prior))
	return b.String()
}

// templateReport renders the deterministic fallback narrative: per-capability
// sections ordered by capability name, findings ordered by severity.
func templateReport(prior []Outcome) string {
	if len(prior) == 0 {
		return "Investigation produced no analysis outcomes."
	}

	sorted := append([]Outcome(nil), prior...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Capability < sorted[j].Capability
	})

	var b strings.Builder
	b.WriteString("Investigation report\n")

	totalFindings := 0
	for _, o := range sorted {
		totalFindings += len(o.Findings)
	}
	b.WriteString(fmt.Sprintf("Analyses run: %d; findings: %d\n\n", len(sorted), totalFindings))

	for _, o := range sorted {
		b.WriteString(fmt.Sprintf("## %s\n", o.Capability))
		if o.Status == OutcomeFailed {
			b.WriteString(fmt.Sprintf("Analysis failed: %s\n\n", o.Error))
			continue
		}
		if o.Summary != "" {
			b.WriteString(o.Summary + "\n")
		}

		findings := append([]finding.Finding(nil), o.Findings...)
		sort.Slice(findings, func(i, j int) bool {
			if findings[i].Severity != findings[j].Severity {
				return findings[i].Severity.AtLeast(findings[j].Severity)
			}
			return findings[i].Title < findings[j].Title
		})
		for _, f := range findings {
			b.WriteString(fmt.Sprintf("- [%s] %s (confidence %.2f; entities: %s)\n",
				f.Severity, f.Title, f.Confidence, strings.Join(f.AffectedEntities, ", ")))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
