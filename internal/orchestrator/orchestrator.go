// Package orchestrator runs one scan end to end: it fetches the report,
// evaluates it against the policy and emits every output.
package orchestrator

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/threatflux/scangate/internal/ci"
	"github.com/threatflux/scangate/internal/config"
	"github.com/threatflux/scangate/internal/models"
	"github.com/threatflux/scangate/internal/policy"
	"github.com/threatflux/scangate/internal/report"
	"github.com/threatflux/scangate/internal/scan"
	"github.com/threatflux/scangate/internal/standalone"
	"github.com/threatflux/scangate/pkg/client"
)

var (
	// ErrNoDocker is returned for standalone scans without a Docker API
	ErrNoDocker = errors.New("standalone scans require a Docker client")

	// ErrNoReport is returned when a source finished without a report
	ErrNoReport = errors.New("scan finished without a report")
)

// Outcome is the result of a scan run
type Outcome struct {
	RunID          string
	Passed         bool
	FailureReasons []string
	Report         *models.VulnerabilityReport
	Evaluation     models.EvaluationResult
	Summary        models.ScanSummary
	Canonical      []byte
	Markdown       string
	SummaryPath    string
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSource replaces the report source derived from the configuration
func WithSource(source ReportSource) Option {
	return func(o *Orchestrator) {
		o.source = source
	}
}

// WithHost sets the CI host adapter
func WithHost(host *ci.Host) Option {
	return func(o *Orchestrator) {
		o.host = host
	}
}

// WithAttacher sets where the summary attachment is announced
func WithAttacher(attacher ci.Attacher) Option {
	return func(o *Orchestrator) {
		o.attacher = attacher
	}
}

// WithDockerAPI sets the Docker API used for standalone scans
func WithDockerAPI(docker standalone.DockerAPI) Option {
	return func(o *Orchestrator) {
		o.docker = docker
	}
}

// Orchestrator runs scans described by a configuration
type Orchestrator struct {
	cfg      *config.Config
	logger   *logrus.Logger
	source   ReportSource
	host     *ci.Host
	attacher ci.Attacher
	docker   standalone.DockerAPI
}

// New validates cfg and wires the report source. Configuration errors are
// returned before any network call is made.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, config.NewConfigurationError("config", "configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:    cfg,
		logger: logrus.New(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.host == nil {
		o.host = ci.NewHost(ci.NewEnvProvider("", o.logger))
	}
	if o.attacher == nil {
		if o.host.Detected() {
			o.attacher = ci.NewPublisher(os.Stdout)
		} else {
			o.attacher = ci.NopAttacher{}
		}
	}

	if o.source == nil {
		source, err := o.newSource()
		if err != nil {
			return nil, err
		}
		o.source = source
	}
	return o, nil
}

func (o *Orchestrator) newSource() (ReportSource, error) {
	if o.cfg.IsStandalone() {
		return o.newStandaloneSource()
	}

	api, err := client.NewClientFromCredentials(o.cfg.Credentials(),
		client.WithLogger(o.logger),
		client.WithTimeout(o.cfg.Scanner.RequestTimeout),
		client.WithRetryOptions(o.cfg.Scanner.MaxRetries, o.cfg.Scanner.RetryDelay),
	)
	if err != nil {
		return nil, config.NewConfigurationError("scanner.url", err.Error())
	}

	return NewExternalSource(api, o.cfg.Credentials(), o.cfg.ScanRequest(), o.cfg.Scanner.WaitForAvailability,
		scan.WithLogger(o.logger),
		scan.WithAvailabilityInterval(o.cfg.Scanner.AvailabilityInterval),
	)
}

func (o *Orchestrator) newStandaloneSource() (ReportSource, error) {
	license, err := o.cfg.ReadLicense()
	if err != nil {
		return nil, err
	}
	if o.docker == nil {
		return nil, ErrNoDocker
	}

	mountPath := o.cfg.Standalone.MountPath
	if mountPath == "" {
		if mountPath, err = o.host.Workspace(); err != nil {
			return nil, config.NewConfigurationError("standalone.mount_path", "no mount path configured and no pipeline workspace found")
		}
	}

	return NewStandaloneSource(standalone.NewRunner(o.docker, o.logger), standalone.Options{
		ScannerRepository: o.cfg.Standalone.Image.Repository,
		ScannerTag:        o.cfg.Standalone.Image.Tag,
		ScannerRegistry: models.RegistryAuth{
			URL:      o.cfg.Standalone.Registry.URL,
			Username: o.cfg.Standalone.Registry.Username,
			Password: o.cfg.Standalone.Registry.Password,
		},
		Target:    o.cfg.ScanRequest(),
		License:   license,
		MountPath: mountPath,
		Platform:  o.cfg.Standalone.Platform,
	}), nil
}

// Run performs the scan, evaluates the report and emits all outputs. A
// failed policy is returned as *policy.ViolationError together with the
// outcome, after every output was written.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	if o.cfg.Scan.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Scan.Timeout)
		defer cancel()
	}

	request := o.cfg.ScanRequest()
	outcome := &Outcome{RunID: uuid.New().String()}
	logger := o.logger.WithFields(logrus.Fields{
		"run_id":    outcome.RunID,
		"image":     request.Image(),
		"scan_type": o.cfg.Scan.Type,
	})

	logger.Info("Start image scan")
	scanned, err := o.source.Fetch(ctx, logger)
	if err != nil {
		logger.WithError(err).Error("Image scan failed")
		return nil, errors.Wrap(err, "image scan failed")
	}
	if scanned == nil {
		logger.Error("Image scan returned no report")
		return nil, ErrNoReport
	}
	logger.Info("Completed image scan")

	for _, v := range scanned.Vulnerabilities {
		logger.Warnf("Image is affected by %s severity vulnerability %s", strings.ToLower(string(v.Severity)), v.Name)
	}

	p := o.cfg.PolicyRules()
	outcome.Report = scanned
	outcome.Evaluation = policy.Evaluate(scanned, p)
	outcome.Summary = outcome.Evaluation.Summary
	outcome.Passed = outcome.Evaluation.Passed
	outcome.FailureReasons = outcome.Evaluation.FailureReasons

	if err := o.emit(logger, outcome); err != nil {
		return nil, err
	}

	logThresholds(logger, p)
	for _, reason := range outcome.FailureReasons {
		logger.Error(reason)
	}

	logger.WithFields(logrus.Fields{
		"passed":  outcome.Passed,
		"total":   outcome.Summary.TotalVulnerabilities,
		"high":    outcome.Summary.HighCount,
		"medium":  outcome.Summary.MediumCount,
		"low":     outcome.Summary.LowCount,
		"reasons": len(outcome.FailureReasons),
	}).Info("Scan evaluation finished")

	if !outcome.Passed {
		return outcome, policy.NewViolationError(scanned.Image(), outcome.Evaluation)
	}
	return outcome, nil
}

// emit renders the report and writes the summary attachment, the Markdown and the JSON outputs
func (o *Orchestrator) emit(logger *logrus.Entry, outcome *Outcome) error {
	canonical, err := report.Canonical(outcome.Report)
	if err != nil {
		return errors.Wrap(err, "failed to render JSON report")
	}
	outcome.Canonical = canonical
	outcome.Markdown = report.Markdown(outcome.Report)

	title := o.cfg.Output.SummaryTitle
	if title == "" {
		title = report.DefaultTitle
	}

	dir, err := o.stagingDirectory()
	if err != nil {
		return err
	}
	if dir != "" {
		path, err := report.SaveSummary(dir, outcome.Markdown, report.AttachmentName(outcome.Report))
		if err != nil {
			return errors.Wrap(err, "failed to save build summary")
		}
		if err := o.attacher.Attach(path, title); err != nil {
			return errors.Wrap(err, "failed to attach build summary")
		}
		outcome.SummaryPath = path
	}

	logger.Info("Scan report:\n" + outcome.Markdown)

	if path := o.cfg.Output.MarkdownPath; path != "" {
		if err := report.WriteFile(path, []byte(report.Document(outcome.Report, title))); err != nil {
			return errors.Wrap(err, "failed to write Markdown report")
		}
		logger.WithField("path", path).Info("Markdown report written")
	}

	if path := o.cfg.Output.JSONPath; path != "" {
		if err := report.WriteFile(path, canonical); err != nil {
			return errors.Wrap(err, "failed to write JSON report")
		}
		logger.WithField("path", path).Info("JSON report written")
	}
	return nil
}

// stagingDirectory returns the pipeline staging directory, the configured
// fallback, or "" when summaries are not kept.
func (o *Orchestrator) stagingDirectory() (string, error) {
	if o.host.Detected() {
		dir, err := o.host.StagingDirectory()
		if err != nil {
			return "", errors.Wrap(err, "failed to prepare summary directory")
		}
		return dir, nil
	}
	return o.cfg.Output.StagingDir, nil
}

func logThresholds(logger *logrus.Entry, p models.Policy) {
	if t := p.HighThreshold; t != nil && t.Enabled {
		logger.Infof("Require number of high severity vulnerabilities to be lower than %d", t.MaxCount)
	}
	if t := p.MediumThreshold; t != nil && t.Enabled {
		logger.Infof("Require number of medium severity vulnerabilities to be lower than %d", t.MaxCount)
	}
	if b := p.Blacklist; b != nil && b.Enabled {
		logger.Infof("Require none of %d blacklisted CVEs to be present", len(b.Identifiers))
	}
}
