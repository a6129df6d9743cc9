// Package policy applies pass/fail rules to a vulnerability report.
package policy

import (
	"fmt"
	"strings"

	"github.com/threatflux/scangate/internal/models"
)

// Violation kinds
const (
	KindHighThreshold   = "high_threshold"
	KindMediumThreshold = "medium_threshold"
	KindBlacklist       = "blacklist"
)

// Violation describes one failed rule
type Violation struct {
	Kind          string
	Identifier    string
	ActualValue   int
	ExpectedValue int
	Reason        string
}

// Summarize counts the findings of a report per severity bucket.
// Unknown severities land in the uncategorized bucket.
func Summarize(report *models.VulnerabilityReport) models.ScanSummary {
	var summary models.ScanSummary
	if report == nil {
		return summary
	}

	for _, vuln := range report.Vulnerabilities {
		summary.TotalVulnerabilities++
		switch vuln.Severity.Level() {
		case models.SeverityCritical:
			summary.CriticalCount++
		case models.SeverityHigh:
			summary.HighCount++
		case models.SeverityMedium:
			summary.MediumCount++
		case models.SeverityLow:
			summary.LowCount++
		default:
			summary.UncategorizedCount++
		}
	}
	return summary
}

// Evaluate applies p to report. Every rule is checked even after a failure,
// so the result lists all violated rules. A nil report counts as empty.
func Evaluate(report *models.VulnerabilityReport, p models.Policy) models.EvaluationResult {
	violations, summary, hits := check(report, p)

	result := models.EvaluationResult{
		HighCount:      summary.HighCount,
		MediumCount:    summary.MediumCount,
		BlacklistHits:  hits,
		Passed:         len(violations) == 0,
		FailureReasons: make([]string, 0, len(violations)),
		Summary:        summary,
	}
	for _, v := range violations {
		result.FailureReasons = append(result.FailureReasons, v.Reason)
	}
	return result
}

// Violations returns the detailed list of rules report breaks under p
func Violations(report *models.VulnerabilityReport, p models.Policy) []Violation {
	violations, _, _ := check(report, p)
	return violations
}

func check(report *models.VulnerabilityReport, p models.Policy) ([]Violation, models.ScanSummary, []string) {
	summary := Summarize(report)
	var violations []Violation

	if v := checkThreshold(p.HighThreshold, summary.HighCount, KindHighThreshold, "high"); v != nil {
		violations = append(violations, *v)
	}
	if v := checkThreshold(p.MediumThreshold, summary.MediumCount, KindMediumThreshold, "medium"); v != nil {
		violations = append(violations, *v)
	}

	hits := blacklistHits(report, p.Blacklist)
	for _, id := range hits {
		violations = append(violations, Violation{
			Kind:       KindBlacklist,
			Identifier: id,
			Reason:     fmt.Sprintf("Failed because the blacklisted CVE %s has been detected", id),
		})
	}

	if hits == nil {
		hits = []string{}
	}
	return violations, summary, hits
}

// checkThreshold fails when count meets or exceeds the configured maximum
func checkThreshold(t *models.Threshold, count int, kind, severity string) *Violation {
	if t == nil || !t.Enabled || count < t.MaxCount {
		return nil
	}
	return &Violation{
		Kind:          kind,
		ActualValue:   count,
		ExpectedValue: t.MaxCount,
		Reason:        fmt.Sprintf("Failed due to %d detected %s severity vulnerabilities", count, severity),
	}
}

// blacklistHits returns the names of listed findings in report order.
// Matching is exact on the upper-cased identifier.
func blacklistHits(report *models.VulnerabilityReport, b *models.Blacklist) []string {
	if report == nil || b == nil || !b.Enabled || len(b.Identifiers) == 0 {
		return nil
	}

	listed := make(map[string]struct{}, len(b.Identifiers))
	for _, id := range b.Identifiers {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id != "" {
			listed[id] = struct{}{}
		}
	}

	var hits []string
	for _, vuln := range report.Vulnerabilities {
		name := strings.ToUpper(vuln.Name)
		if _, ok := listed[name]; ok {
			hits = append(hits, name)
		}
	}
	return hits
}
