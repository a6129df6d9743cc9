package models

// Credentials identifies the scanning service and the account used against it.
type Credentials struct {
	URL                  string
	Username             string
	Password             string
	AcceptUntrustedCerts bool
}

// RegistryAuth holds authentication details for a container registry.
type RegistryAuth struct {
	URL      string `json:"registry"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// IsZero reports whether no registry was configured
func (a RegistryAuth) IsZero() bool {
	return a.URL == "" && a.Username == "" && a.Password == ""
}

// ScanRequest describes the image to scan. A nil Registry means the image
// already present on the scanning host is scanned.
type ScanRequest struct {
	Registry   *RegistryAuth
	Repository string
	Tag        string
	ScanLayers bool
}

// Image returns the repository:tag reference of the requested image
func (r ScanRequest) Image() string {
	return r.Repository + ":" + r.Tag
}

// Threshold fails an evaluation when the count of findings at one severity
// meets or exceeds MaxCount.
type Threshold struct {
	Enabled  bool `json:"enabled" mapstructure:"enabled"`
	MaxCount int  `json:"max_count" mapstructure:"max_count"`
}

// Blacklist fails an evaluation when any finding identifier is listed.
type Blacklist struct {
	Enabled     bool     `json:"enabled" mapstructure:"enabled"`
	Identifiers []string `json:"identifiers" mapstructure:"identifiers"`
}

// Policy groups the pass/fail rules applied to a report.
type Policy struct {
	HighThreshold   *Threshold `json:"high,omitempty"`
	MediumThreshold *Threshold `json:"medium,omitempty"`
	Blacklist       *Blacklist `json:"blacklist,omitempty"`
}

// EvaluationResult is the outcome of applying a Policy to a report.
type EvaluationResult struct {
	HighCount      int         `json:"high_count"`
	MediumCount    int         `json:"medium_count"`
	BlacklistHits  []string    `json:"blacklist_hits"`
	Passed         bool        `json:"passed"`
	FailureReasons []string    `json:"failure_reasons"`
	Summary        ScanSummary `json:"summary"`
}
