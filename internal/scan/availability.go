package scan

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// WaitUntilAvailable probes the service at the configured interval until it
// reports ready. Probe errors are logged and the wait goes on, since the
// service may still be starting. It returns only when the service is ready
// or ctx is done.
func (p *Poller) WaitUntilAvailable(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(p.interval), 1)

	for probes := 1; ; probes++ {
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		ready, err := p.api.CheckAvailable(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.WithError(err).WithField("probe", probes).Warn("Scanning service probe failed")
			continue
		}
		if ready {
			p.logger.WithField("probes", probes).Info("Scanning service is available")
			return nil
		}

		p.logger.WithFields(logrus.Fields{
			"probe":    probes,
			"interval": p.interval.String(),
		}).Debug("Scanning service not ready yet")
	}
}
