package orchestrator

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/threatflux/scangate/internal/models"
	"github.com/threatflux/scangate/internal/scan"
	"github.com/threatflux/scangate/internal/standalone"
	"github.com/threatflux/scangate/pkg/client"
)

const deauthTimeout = 10 * time.Second

// ReportSource produces the vulnerability report of one scan
type ReportSource interface {
	Fetch(ctx context.Context, logger *logrus.Entry) (*models.VulnerabilityReport, error)
}

// ExternalSource scans through a remote scanning service
type ExternalSource struct {
	api     client.ScannerAPI
	poller  *scan.Poller
	creds   models.Credentials
	request models.ScanRequest
	wait    bool
}

// NewExternalSource creates a source that authenticates against api and polls for the report
func NewExternalSource(api client.ScannerAPI, creds models.Credentials, request models.ScanRequest, waitForAvailability bool, opts ...scan.Option) (*ExternalSource, error) {
	poller, err := scan.NewPoller(api, opts...)
	if err != nil {
		return nil, err
	}
	return &ExternalSource{
		api:     api,
		poller:  poller,
		creds:   creds,
		request: request,
		wait:    waitForAvailability,
	}, nil
}

// Fetch authenticates, polls until the scan finished and always closes the session it opened
func (s *ExternalSource) Fetch(ctx context.Context, logger *logrus.Entry) (report *models.VulnerabilityReport, err error) {
	if s.wait {
		logger.Info("Waiting for the scanning service to become available")
		if err := s.poller.WaitUntilAvailable(ctx); err != nil {
			return nil, errors.Wrap(err, "scanning service did not become available")
		}
	}

	logger.Info("Authenticate with scanning service")
	if _, err := s.api.Authenticate(ctx, s.creds.Username, s.creds.Password); err != nil {
		logger.WithError(err).Error("Authentication with scanning service failed")
		return nil, err
	}
	logger.Info("Authenticated with scanning service")

	defer func() {
		s.deauthenticate(ctx, logger)
	}()

	return s.poller.Poll(ctx, s.request)
}

func (s *ExternalSource) deauthenticate(ctx context.Context, logger *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deauthTimeout)
	defer cancel()

	logger.Info("Unauthenticate with scanning service")
	if err := s.api.Deauthenticate(ctx); err != nil {
		logger.WithError(err).Warn("Failed to close scanning service session")
	}
}

// StandaloneSource scans with a local scanner container
type StandaloneSource struct {
	runner *standalone.Runner
	opts   standalone.Options
}

// NewStandaloneSource creates a source running the scanner container with opts
func NewStandaloneSource(runner *standalone.Runner, opts standalone.Options) *StandaloneSource {
	return &StandaloneSource{runner: runner, opts: opts}
}

// Fetch runs the scanner container and reads back its report
func (s *StandaloneSource) Fetch(ctx context.Context, logger *logrus.Entry) (*models.VulnerabilityReport, error) {
	logger.WithField("scanner", s.opts.ScannerRepository+":"+s.opts.ScannerTag).Info("Running standalone scanner")
	return s.runner.Run(ctx, s.opts)
}
