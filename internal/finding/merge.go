package finding

import (
	"sort"
	"strings"
)

// Merge combines findings from multiple detectors, collapsing findings that
// report the same kind on the same entity set. When detectors disagree on
// severity for overlapping evidence, the maximum severity wins; confidence
// becomes the maximum of the merged findings and evidence lists are
// concatenated in input order.
//
// Merge is associative and order-independent up to evidence ordering within a
// collapsed group, so partial aggregates can be merged incrementally.
func Merge(groups ...[]Finding) []Finding {
	byKey := make(map[string]Finding)
	var order []string

	for _, group := range groups {
		for _, f := range group {
			key := mergeKey(f)
			existing, seen := byKey[key]
			if !seen {
				byKey[key] = f
				order = append(order, key)
				continue
			}
			byKey[key] = collapse(existing, f)
		}
	}

	sort.Strings(order)
	merged := make([]Finding, 0, len(order))
	for _, key := range order {
		merged = append(merged, byKey[key])
	}
	return merged
}

// collapse folds b into a under the max-severity-wins policy.
func collapse(a, b Finding) Finding {
	a.Severity = a.Severity.Max(b.Severity)
	if b.Confidence > a.Confidence {
		a.Confidence = b.Confidence
	}
	a.Evidence = append(a.Evidence, b.Evidence...)
	if a.CreatedAt.After(b.CreatedAt) {
		a.CreatedAt = b.CreatedAt
	}
	return a
}

// mergeKey identifies findings that describe the same observation: same kind
// over the same entity set.
func mergeKey(f Finding) string {
	entities := make([]string, len(f.AffectedEntities))
	copy(entities, f.AffectedEntities)
	sort.Strings(entities)
	return string(f.Kind) + "|" + strings.Join(entities, ",")
}

// CountBySeverity tallies findings per severity level.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

// MaxSeverity returns the highest severity present, or SeverityLow for an
// empty list.
func MaxSeverity(findings []Finding) Severity {
	maxSev := SeverityLow
	for _, f := range findings {
		maxSev = maxSev.Max(f.Severity)
	}
	return maxSev
}
