package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/threatflux/scangate/internal/simulator"
)

func newSimulateCmd(logger *logrus.Logger) *cobra.Command {
	cfg := simulator.DefaultConfig()
	var (
		listen   string
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Serve a simulated scanning service for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Users = map[string]string{username: password}

			server, err := simulator.NewServer(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.ListenAndServe(ctx, listen)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&listen, "listen", "127.0.0.1:10443", "address to listen on")
	flags.StringVar(&username, "username", "admin", "accepted username")
	flags.StringVar(&password, "password", "admin", "accepted password")
	flags.StringVar(&cfg.Secret, "secret", cfg.Secret, "token signing secret")
	flags.DurationVar(&cfg.TokenExpiry, "token-expiry", 30*time.Minute, "session token lifetime")
	flags.IntVar(&cfg.NotReadyProbes, "not-ready-probes", 0, "probes answered with 405 before the service is ready")
	flags.IntVar(&cfg.NotModifiedResponses, "not-modified", cfg.NotModifiedResponses, "304 answers before a scan returns its report")

	return cmd
}
