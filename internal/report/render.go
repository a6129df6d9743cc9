// Package report renders vulnerability reports as canonical JSON and as a
// Markdown summary.
package report

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/threatflux/scangate/internal/models"
)

// DefaultTitle is the heading used for the Markdown document and the summary attachment
const DefaultTitle = "NeuVector scan report"

// NoVulnerabilitiesLine replaces the vulnerability table of an empty report
const NoVulnerabilitiesLine = "> No vulnerabilities have been detected in the image."

const (
	vulnerabilityHeader    = "Score | Name | Severity | Package name | Package version | Fixed version | Vectors | Description\n"
	vulnerabilitySeparator = "--- | --- | --- | --- | --- | --- | --- | ---\n"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

var cellEscaper = strings.NewReplacer(
	"|", `\|`,
	"\r\n", "<br>",
	"\n", "<br>",
	"\r", "<br>",
)

// Canonical returns the report as JSON indented with two spaces.
// Field order follows the struct so the output is stable for a given report.
func Canonical(report *models.VulnerabilityReport) ([]byte, error) {
	if report == nil {
		report = &models.VulnerabilityReport{}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return data, nil
}

// Markdown renders the human readable summary of a report
func Markdown(report *models.VulnerabilityReport) string {
	if report == nil {
		report = &models.VulnerabilityReport{}
	}

	var sb strings.Builder

	sb.WriteString("### Summary\n\n")
	fmt.Fprintf(&sb, "Image | %s\n", cell(report.Image()))
	sb.WriteString("--- | ---\n")

	writeRow(&sb, "Registry", report.Registry)
	writeRow(&sb, "Repository", report.Repository)
	writeRow(&sb, "Tag", report.Tag)
	writeRow(&sb, "Image ID", report.ImageID)
	writeRow(&sb, "Image Digest", report.Digest)
	writeRow(&sb, "Base OS", report.BaseOS)

	sb.WriteString("\n### Vulnerabilities\n\n")

	if len(report.Vulnerabilities) == 0 {
		sb.WriteString(NoVulnerabilitiesLine)
		return sb.String()
	}

	sb.WriteString(vulnerabilityHeader)
	sb.WriteString(vulnerabilitySeparator)
	for _, v := range report.Vulnerabilities {
		name := cell(v.Name)
		if v.Link != "" {
			name = fmt.Sprintf("[%s](%s)", name, cell(v.Link))
		}
		fmt.Fprintf(&sb, "%s | %s | %s | %s | %s | %s | %s | %s\n",
			strconv.FormatFloat(v.Score, 'f', -1, 64),
			name,
			cell(string(v.Severity)),
			cell(v.PackageName),
			cell(v.PackageVersion),
			cell(v.FixedVersion),
			cell(v.Vectors),
			cell(v.Description),
		)
	}

	return sb.String()
}

// Document renders the Markdown summary under a level two heading
func Document(report *models.VulnerabilityReport, title string) string {
	if title == "" {
		title = DefaultTitle
	}
	return "## " + title + "\n\n" + Markdown(report)
}

// AttachmentName returns the file name of the summary attachment. The image
// id keeps several scans of one pipeline apart; repository and tag are used
// when the service did not report an id.
func AttachmentName(report *models.VulnerabilityReport) string {
	if report == nil {
		return "report.md"
	}

	base := sanitize(report.ImageID)
	if base == "" {
		base = sanitize(report.Repository + "_" + report.Tag)
	}
	if base == "" {
		base = "report"
	}
	return base + ".md"
}

func writeRow(sb *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "%s | %s\n", label, cell(value))
}

func cell(value string) string {
	return cellEscaper.Replace(value)
}

func sanitize(name string) string {
	name = unsafeFileChars.ReplaceAllString(name, "_")
	return strings.Trim(name, "._")
}
