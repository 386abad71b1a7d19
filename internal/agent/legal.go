package agent

import (
	"fmt"
	"strings"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/detect"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
)

// modalityRule is one row of the compliance rule table: a procurement
// modality and the contract value ceiling the law sets for it.
type modalityRule struct {
	modality string
	ceiling  float64
	statute  string
}

// Value ceilings for works and engineering services follow the updated
// limits of Lei 14.133/2021 art. 75 and the Decreto 10.922/2021 adjustments;
// the convite/tomada de preços rows cover legacy Lei 8.666/93 contracts still
// in force.
var modalityRules = []modalityRule{
	{modality: "dispensa", ceiling: 119_812.02, statute: "Lei 14.133/2021 art. 75 II"},
	{modality: "dispensa-obras", ceiling: 239_624.04, statute: "Lei 14.133/2021 art. 75 I"},
	{modality: "convite", ceiling: 330_000.00, statute: "Lei 8.666/93 art. 23 II-a"},
	{modality: "tomada-de-precos", ceiling: 3_300_000.00, statute: "Lei 8.666/93 art. 23 II-b"},
}

// Lei 8.666/93 art. 65 §1º caps additive amendments at 25% of the original
// contract value (50% for building renovation, not distinguished here).
const amendmentCapRatio = 0.25

// dispensaOveruseRatio flags an organ when more than this share of its
// contracts bypass bidding.
const dispensaOveruseRatio = 0.5

const legalMinContracts = 5

// NewLegalAgent checks contracts against the modality ceiling and amendment
// rules of Lei 8.666/93 and Lei 14.133/2021.
func NewLegalAgent() (Agent, error) {
	return &detectorAgent{
		name:       "bonifacio",
		capability: CapabilityLegal,
		run: func(task Task) (detect.Report, error) {
			return checkCompliance(task.Records.Contracts), nil
		},
	}, nil
}

func checkCompliance(contracts []procurement.Contract) detect.Report {
	var report detect.Report
	var valid []procurement.Contract
	for _, c := range contracts {
		if c.Validate() != nil {
			report.SkippedRecords++
			continue
		}
		valid = append(valid, c)
	}
	report.SampleSize = len(valid)
	if len(valid) < legalMinContracts {
		report.Insufficient = true
		return report
	}

	report.Findings = append(report.Findings, ceilingViolations(valid)...)
	report.Findings = append(report.Findings, amendmentViolations(valid)...)
	report.Findings = append(report.Findings, dispensaOveruse(valid)...)
	return report
}

func ceilingViolations(contracts []procurement.Contract) []finding.Finding {
	var out []finding.Finding
	for _, c := range contracts {
		rule, ok := ruleFor(c.Modality)
		if !ok {
			continue
		}
		if c.Value <= rule.ceiling {
			continue
		}
		excess := c.Value/rule.ceiling - 1
		severity := finding.SeverityMedium
		if excess > 1.0 {
			severity = finding.SeverityCritical
		} else if excess > 0.25 {
			severity = finding.SeverityHigh
		}
		f := finding.New(finding.KindLegalViolation,
			fmt.Sprintf("contract %s exceeds %s ceiling", c.Key, c.Modality), severity).
			WithConfidence(0.95).
			WithEvidence(finding.NewEvidence(
				fmt.Sprintf("value R$ %.2f vs ceiling R$ %.2f (%s)", c.Value, rule.ceiling, rule.statute),
				map[string]any{"value": c.Value, "ceiling": rule.ceiling, "statute": rule.statute},
			)).
			WithEntities(c.SupplierID, c.OrganCode)
		out = append(out, f)
	}
	return out
}

func amendmentViolations(contracts []procurement.Contract) []finding.Finding {
	var out []finding.Finding
	for _, c := range contracts {
		if c.AmendmentValue <= 0 || c.Value <= 0 {
			continue
		}
		ratio := c.AmendmentValue / c.Value
		if ratio <= amendmentCapRatio {
			continue
		}
		severity := finding.SeverityHigh
		if ratio > 2*amendmentCapRatio {
			severity = finding.SeverityCritical
		}
		f := finding.New(finding.KindLegalViolation,
			fmt.Sprintf("contract %s amendments exceed the 25%% cap", c.Key), severity).
			WithConfidence(0.9).
			WithEvidence(finding.NewEvidence(
				fmt.Sprintf("amendments R$ %.2f are %.0f%% of original R$ %.2f (Lei 8.666/93 art. 65)",
					c.AmendmentValue, ratio*100, c.Value),
				map[string]any{"ratio": ratio},
			)).
			WithEntities(c.SupplierID, c.OrganCode)
		out = append(out, f)
	}
	return out
}

func dispensaOveruse(contracts []procurement.Contract) []finding.Finding {
	total := make(map[string]int)
	noBid := make(map[string]int)
	for _, c := range contracts {
		total[c.OrganCode]++
		if strings.HasPrefix(normalizeModality(c.Modality), "dispensa") ||
			normalizeModality(c.Modality) == "inexigibilidade" {
			noBid[c.OrganCode]++
		}
	}

	var out []finding.Finding
	for organ, n := range noBid {
		if total[organ] < legalMinContracts {
			continue
		}
		ratio := float64(n) / float64(total[organ])
		if ratio < dispensaOveruseRatio {
			continue
		}
		severity := finding.SeverityMedium
		if ratio >= 0.75 {
			severity = finding.SeverityHigh
		}
		f := finding.New(finding.KindLegalViolation,
			fmt.Sprintf("organ %s awards %.0f%% of contracts without bidding", organ, ratio*100),
			severity).
			WithConfidence(ratio).
			WithEvidence(finding.NewEvidence(
				fmt.Sprintf("%d of %d contracts via dispensa/inexigibilidade", n, total[organ]),
				map[string]any{"no_bid": n, "total": total[organ]},
			)).
			WithEntities(organ)
		out = append(out, f)
	}
	return out
}

func ruleFor(modality string) (modalityRule, bool) {
	normalized := normalizeModality(modality)
	for _, r := range modalityRules {
		if r.modality == normalized {
			return r, true
		}
	}
	return modalityRule{}, false
}

func normalizeModality(modality string) string {
	s := strings.ToLower(strings.TrimSpace(modality))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "ç", "c")
	s = strings.ReplaceAll(s, "ã", "a")
	s = strings.ReplaceAll(s, "é", "e")
	s = strings.ReplaceAll(s, "ê", "e")
	return s
}
