package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threatflux/scangate/internal/models"
)

func vulns(severities ...string) []models.Vulnerability {
	out := make([]models.Vulnerability, 0, len(severities))
	for i, s := range severities {
		sev, _ := models.ParseSeverity(s)
		out = append(out, models.Vulnerability{
			Name:     "CVE-2024-" + string(rune('A'+i)),
			Severity: sev,
		})
	}
	return out
}

func TestSummarize(t *testing.T) {
	report := &models.VulnerabilityReport{
		Vulnerabilities: vulns("Critical", "HIGH", "high", "Medium", "low", "Negligible", "unknown"),
	}

	summary := Summarize(report)
	assert.Equal(t, models.ScanSummary{
		TotalVulnerabilities: 7,
		CriticalCount:        1,
		HighCount:            2,
		MediumCount:          1,
		LowCount:             1,
		UncategorizedCount:   2,
	}, summary)

	assert.Equal(t, models.ScanSummary{}, Summarize(nil))
}

func TestThresholdBoundary(t *testing.T) {
	tests := []struct {
		name     string
		highs    int
		maxCount int
		passed   bool
	}{
		{name: "count equals max fails", highs: 3, maxCount: 3, passed: false},
		{name: "count one below max passes", highs: 2, maxCount: 3, passed: true},
		{name: "count above max fails", highs: 5, maxCount: 3, passed: false},
		{name: "no findings pass", highs: 0, maxCount: 1, passed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			severities := make([]string, tt.highs)
			for i := range severities {
				severities[i] = "High"
			}
			report := &models.VulnerabilityReport{Vulnerabilities: vulns(severities...)}

			result := Evaluate(report, models.Policy{
				HighThreshold: &models.Threshold{Enabled: true, MaxCount: tt.maxCount},
			})
			assert.Equal(t, tt.passed, result.Passed)
			assert.Equal(t, tt.highs, result.HighCount)
			if !tt.passed {
				require.Len(t, result.FailureReasons, 1)
			}
		})
	}
}

func TestDisabledThresholdIgnored(t *testing.T) {
	report := &models.VulnerabilityReport{Vulnerabilities: vulns("Medium", "Medium", "High")}

	result := Evaluate(report, models.Policy{
		HighThreshold:   &models.Threshold{Enabled: true, MaxCount: 5},
		MediumThreshold: &models.Threshold{Enabled: false, MaxCount: 1},
	})
	assert.True(t, result.Passed)
	assert.Equal(t, 2, result.MediumCount)
	assert.Empty(t, result.FailureReasons)
}

func TestCriticalDoesNotGate(t *testing.T) {
	report := &models.VulnerabilityReport{Vulnerabilities: vulns("Critical", "Critical", "Low")}

	result := Evaluate(report, models.Policy{
		HighThreshold:   &models.Threshold{Enabled: true, MaxCount: 1},
		MediumThreshold: &models.Threshold{Enabled: true, MaxCount: 1},
	})
	assert.True(t, result.Passed)
	assert.Equal(t, 2, result.Summary.CriticalCount)
}

func TestBlacklist(t *testing.T) {
	report := &models.VulnerabilityReport{
		Vulnerabilities: []models.Vulnerability{
			{Name: "CVE-2021-0001", Severity: models.SeverityLow},
			{Name: "cve-2021-0002", Severity: models.SeverityLow},
			{Name: "CVE-2021-00031", Severity: models.SeverityLow},
		},
	}

	result := Evaluate(report, models.Policy{
		Blacklist: &models.Blacklist{
			Enabled:     true,
			Identifiers: []string{"cve-2021-0002", " CVE-2021-0001 ", "CVE-2021-0003"},
		},
	})
	assert.False(t, result.Passed)
	assert.Equal(t, []string{"CVE-2021-0001", "CVE-2021-0002"}, result.BlacklistHits)
	assert.Equal(t, []string{
		"Failed because the blacklisted CVE CVE-2021-0001 has been detected",
		"Failed because the blacklisted CVE CVE-2021-0002 has been detected",
	}, result.FailureReasons)
}

func TestBlacklistDisabledOrEmpty(t *testing.T) {
	report := &models.VulnerabilityReport{Vulnerabilities: []models.Vulnerability{{Name: "CVE-2021-0001"}}}

	result := Evaluate(report, models.Policy{
		Blacklist: &models.Blacklist{Enabled: false, Identifiers: []string{"CVE-2021-0001"}},
	})
	assert.True(t, result.Passed)
	assert.Empty(t, result.BlacklistHits)

	result = Evaluate(report, models.Policy{Blacklist: &models.Blacklist{Enabled: true}})
	assert.True(t, result.Passed)
}

func TestAllReasonsCollected(t *testing.T) {
	report := &models.VulnerabilityReport{
		Vulnerabilities: []models.Vulnerability{
			{Name: "CVE-1", Severity: models.SeverityHigh},
			{Name: "CVE-2", Severity: models.SeverityHigh},
			{Name: "CVE-3", Severity: models.SeverityMedium},
		},
	}

	result := Evaluate(report, models.Policy{
		HighThreshold:   &models.Threshold{Enabled: true, MaxCount: 2},
		MediumThreshold: &models.Threshold{Enabled: true, MaxCount: 1},
		Blacklist:       &models.Blacklist{Enabled: true, Identifiers: []string{"CVE-3"}},
	})
	assert.False(t, result.Passed)
	assert.Equal(t, []string{
		"Failed due to 2 detected high severity vulnerabilities",
		"Failed due to 1 detected medium severity vulnerabilities",
		"Failed because the blacklisted CVE CVE-3 has been detected",
	}, result.FailureReasons)

	violations := Violations(report, models.Policy{
		HighThreshold: &models.Threshold{Enabled: true, MaxCount: 2},
	})
	require.Len(t, violations, 1)
	assert.Equal(t, KindHighThreshold, violations[0].Kind)
	assert.Equal(t, 2, violations[0].ActualValue)
	assert.Equal(t, 2, violations[0].ExpectedValue)
}

func TestEmptyReport(t *testing.T) {
	p := models.Policy{
		HighThreshold:   &models.Threshold{Enabled: true, MaxCount: 1},
		MediumThreshold: &models.Threshold{Enabled: true, MaxCount: 1},
		Blacklist:       &models.Blacklist{Enabled: true, Identifiers: []string{"CVE-1"}},
	}

	for _, report := range []*models.VulnerabilityReport{nil, {}, {Vulnerabilities: []models.Vulnerability{}}} {
		result := Evaluate(report, p)
		assert.True(t, result.Passed)
		assert.Zero(t, result.HighCount)
		assert.Zero(t, result.MediumCount)
		assert.NotNil(t, result.BlacklistHits)
		assert.Empty(t, result.FailureReasons)
	}
}

func TestViolationError(t *testing.T) {
	assert.NoError(t, NewViolationError("myapp:1.0", models.EvaluationResult{Passed: true}))

	err := NewViolationError("myapp:1.0", models.EvaluationResult{
		FailureReasons: []string{"first", "second"},
	})
	var vErr *ViolationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{"first", "second"}, vErr.Reasons)
	assert.Equal(t, "policy check failed for myapp:1.0: first; second", err.Error())
}
