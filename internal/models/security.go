package models

import (
	"encoding/json"
	"strings"
)

// Severity is the normalized severity of a vulnerability.
// Known values are stored in their canonical spelling; anything the scanning
// service reports outside the closed set keeps its raw text and is treated
// as uncategorized.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"

	// SeverityUncategorized is the bucket for unrecognized severity strings
	SeverityUncategorized Severity = "Uncategorized"
)

// ParseSeverity normalizes a wire severity case-insensitively.
// The boolean is false when the value is not one of the known severities.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, true
	case "medium":
		return SeverityMedium, true
	case "high":
		return SeverityHigh, true
	case "critical":
		return SeverityCritical, true
	default:
		return Severity(s), false
	}
}

// Level returns the gating bucket of the severity
func (s Severity) Level() Severity {
	if level, ok := ParseSeverity(string(s)); ok {
		return level
	}
	return SeverityUncategorized
}

// IsKnown reports whether the severity belongs to the closed set
func (s Severity) IsKnown() bool {
	_, ok := ParseSeverity(string(s))
	return ok
}

// UnmarshalJSON normalizes known severities at the parsing boundary
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s, _ = ParseSeverity(raw)
	return nil
}

// Vulnerability represents a single finding reported by the scanning service.
type Vulnerability struct {
	Name                  string   `json:"name"` // e.g., CVE-2023-1234
	Score                 float64  `json:"score"`
	Severity              Severity `json:"severity"`
	Vectors               string   `json:"vectors,omitempty"`
	Description           string   `json:"description,omitempty"`
	PackageName           string   `json:"package_name"`
	PackageVersion        string   `json:"package_version"`
	FixedVersion          string   `json:"fixed_version,omitempty"`
	Link                  string   `json:"link,omitempty"`
	ScoreV3               float64  `json:"score_v3,omitempty"`
	VectorsV3             string   `json:"vectors_v3,omitempty"`
	PublishedTimestamp    int64    `json:"published_timestamp,omitempty"`
	LastModifiedTimestamp int64    `json:"last_modified_timestamp,omitempty"`
	FeedRating            string   `json:"feed_rating,omitempty"`
	CPEs                  []string `json:"cpes,omitempty"`
	Tags                  []string `json:"tags,omitempty"`
}

// VulnerabilityReport holds the result of one image scan. It is created once
// by the scan source and must not be mutated afterwards.
type VulnerabilityReport struct {
	Registry        string          `json:"registry,omitempty"`
	Repository      string          `json:"repository"`
	Tag             string          `json:"tag"`
	ImageID         string          `json:"image_id,omitempty"`
	Digest          string          `json:"digest,omitempty"`
	BaseOS          string          `json:"base_os,omitempty"`
	CVEDBVersion    string          `json:"cvedb_version,omitempty"`
	CVEDBCreateTime string          `json:"cvedb_create_time,omitempty"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// Image returns the repository:tag reference of the scanned image
func (r *VulnerabilityReport) Image() string {
	return r.Repository + ":" + r.Tag
}

// ScanSummary provides a per-severity count of a report.
type ScanSummary struct {
	TotalVulnerabilities int `json:"total_vulnerabilities"`
	CriticalCount        int `json:"critical_count"`
	HighCount            int `json:"high_count"`
	MediumCount          int `json:"medium_count"`
	LowCount             int `json:"low_count"`
	UncategorizedCount   int `json:"uncategorized_count"`
}
