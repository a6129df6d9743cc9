// Package simulator serves a scanning-service compatible REST API backed by
// canned reports. It is used for local development and integration tests.
package simulator

import (
	"errors"
	"time"

	"github.com/threatflux/scangate/internal/models"
)

// Config controls the behaviour of the simulated scanning service
type Config struct {
	// Users maps usernames to their plain-text passwords
	Users map[string]string

	// Secret signs the session tokens
	Secret string

	// TokenExpiry is the lifetime of a session token
	TokenExpiry time.Duration

	// NotReadyProbes is how many availability probes are answered with 405 before the service is ready
	NotReadyProbes int

	// NotModifiedResponses is how many 304 answers a scan gets before its report is returned
	NotModifiedResponses int

	// Reports holds canned reports keyed by "repository:tag"
	Reports map[string]*models.VulnerabilityReport

	// BcryptCost is the hash cost for the user store; zero selects the bcrypt default
	BcryptCost int
}

// DefaultConfig returns a simulator with a single admin/admin account
func DefaultConfig() Config {
	return Config{
		Users:                map[string]string{"admin": "admin"},
		Secret:               "scangate-simulator",
		TokenExpiry:          30 * time.Minute,
		NotModifiedResponses: 2,
		Reports:              map[string]*models.VulnerabilityReport{},
	}
}

func (c Config) validate() error {
	if len(c.Users) == 0 {
		return errors.New("at least one user is required")
	}
	if c.Secret == "" {
		return errors.New("token secret is required")
	}
	if c.TokenExpiry <= 0 {
		return errors.New("token expiry must be positive")
	}
	if c.NotReadyProbes < 0 || c.NotModifiedResponses < 0 {
		return errors.New("response counts cannot be negative")
	}
	return nil
}

// SampleReport returns a report with one finding per gating severity, used
// when no canned report matches a scan request.
func SampleReport(repository, tag string) *models.VulnerabilityReport {
	return &models.VulnerabilityReport{
		Repository: repository,
		Tag:        tag,
		ImageID:    "sha256:c1aabb73d2339c5ebaa3681de2e9d9c18d57485045a4e311d9f8004bec208d67",
		Digest:     "sha256:21a3deaa0d32a8057914f36584b5288d2e5ecc984380bc0118285c70fa8c9300",
		BaseOS:     "alpine:3.18.4",
		Vulnerabilities: []models.Vulnerability{
			{
				Name:           "CVE-2023-5363",
				Score:          7.5,
				Severity:       models.SeverityHigh,
				Vectors:        "AV:N/AC:L/Au:N/C:P/I:N/A:N",
				Description:    "Incorrect cipher key and IV length processing",
				PackageName:    "openssl",
				PackageVersion: "3.1.3-r0",
				FixedVersion:   "3.1.4-r0",
				Link:           "https://nvd.nist.gov/vuln/detail/CVE-2023-5363",
				FeedRating:     "High",
			},
			{
				Name:           "CVE-2023-5678",
				Score:          5.3,
				Severity:       models.SeverityMedium,
				Vectors:        "AV:N/AC:L/Au:N/C:N/I:N/A:P",
				Description:    "Excessive time spent in DH check / generation with large Q parameter value",
				PackageName:    "openssl",
				PackageVersion: "3.1.3-r0",
				FixedVersion:   "3.1.4-r1",
				Link:           "https://nvd.nist.gov/vuln/detail/CVE-2023-5678",
				FeedRating:     "Medium",
			},
		},
	}
}
