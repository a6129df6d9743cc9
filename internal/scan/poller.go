// Package scan drives the scan request loop against the scanning service
// and waits for the service to become ready.
package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/threatflux/scangate/internal/models"
	"github.com/threatflux/scangate/pkg/client"
)

// DefaultAvailabilityInterval is the pause between two readiness probes
const DefaultAvailabilityInterval = time.Second

// State is the lifecycle state of a Poller
type State int

const (
	// StateIdle means no scan has been requested yet
	StateIdle State = iota
	// StateRequesting means a scan request is in flight
	StateRequesting
	// StateRetrying means the service answered 304 and the request is resubmitted
	StateRetrying
	// StateDone means a report was received
	StateDone
	// StateFailed means the scan ended with an error
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateRetrying:
		return "retrying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures a Poller
type Option func(*Poller)

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithAvailabilityInterval sets the pause between readiness probes
func WithAvailabilityInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// Poller submits a scan request and resubmits it for as long as the
// service reports the scan as still running. Only the context bounds the
// loops; there is no attempt limit.
type Poller struct {
	api      client.ScannerAPI
	logger   *logrus.Logger
	interval time.Duration
	state    State
	attempts int
}

// NewPoller creates a poller for the given scanner API
func NewPoller(api client.ScannerAPI, opts ...Option) (*Poller, error) {
	if api == nil {
		return nil, ErrNoScanner
	}

	p := &Poller{
		api:      api,
		logger:   logrus.New(),
		interval: DefaultAvailabilityInterval,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// State returns the current state
func (p *Poller) State() State {
	return p.state
}

// Attempts returns the number of scan requests issued by the last Poll
func (p *Poller) Attempts() int {
	return p.attempts
}

// Poll requests the scan described by req and returns the finished report.
// A 304 answer is resubmitted immediately; any other failure ends the loop.
func (p *Poller) Poll(ctx context.Context, req models.ScanRequest) (*models.VulnerabilityReport, error) {
	if req.Repository == "" || req.Tag == "" {
		return nil, fmt.Errorf("%w: repository and tag are required", ErrInvalidRequest)
	}

	p.attempts = 0
	image := req.Image()
	logger := p.logger.WithFields(logrus.Fields{
		"image":    image,
		"registry": registryURL(req),
	})

	for {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(image, err)
		}

		p.state = StateRequesting
		p.attempts++

		report, err := p.request(ctx, req)
		if err == nil {
			p.state = StateDone
			logger.WithField("attempts", p.attempts).Info("Scan finished")
			return report, nil
		}

		if client.IsNotModified(err) {
			p.state = StateRetrying
			logger.WithField("attempt", p.attempts).Debug("Scan in progress, resubmitting request")
			continue
		}

		logger.WithError(err).WithField("attempts", p.attempts).Error("Scan request failed")
		return nil, p.fail(image, err)
	}
}

func (p *Poller) request(ctx context.Context, req models.ScanRequest) (*models.VulnerabilityReport, error) {
	if req.Registry == nil || req.Registry.URL == "" {
		return p.api.ScanLocalRepository(ctx, req.Repository, req.Tag, req.ScanLayers)
	}
	return p.api.ScanRepository(ctx, *req.Registry, req.Repository, req.Tag, req.ScanLayers)
}

func (p *Poller) fail(image string, err error) error {
	p.state = StateFailed
	return &Error{Image: image, Attempts: p.attempts, Err: err}
}

func registryURL(req models.ScanRequest) string {
	if req.Registry == nil {
		return ""
	}
	return req.Registry.URL
}
