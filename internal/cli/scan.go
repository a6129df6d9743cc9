package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/threatflux/scangate/internal/config"
	"github.com/threatflux/scangate/internal/orchestrator"
	"github.com/threatflux/scangate/internal/standalone"
)

// scanFlags maps flag names to configuration keys
var scanFlags = []struct {
	name, key, usage string
	kind             string
}{
	{"type", "scan.type", "scan type: external or standalone", "string"},
	{"repository", "scan.repository", "repository of the image to scan", "string"},
	{"tag", "scan.tag", "tag of the image to scan", "string"},
	{"scan-layers", "scan.scan_layers", "report vulnerabilities per image layer", "bool"},
	{"timeout", "scan.timeout", "abort the whole run after this duration (0 waits forever)", "duration"},
	{"scanner-url", "scanner.url", "URL of the scanning service", "string"},
	{"scanner-username", "scanner.username", "scanning service username", "string"},
	{"scanner-password", "scanner.password", "scanning service password", "string"},
	{"accept-untrusted-certs", "scanner.accept_untrusted_certs", "accept self-signed scanning service certificates", "bool"},
	{"wait", "scanner.wait_for_availability", "wait until the scanning service is ready", "bool"},
	{"request-timeout", "scanner.request_timeout", "per-request timeout, 0 disables it", "duration"},
	{"max-retries", "scanner.max_retries", "retries after a request timeout", "int"},
	{"registry-url", "registry.url", "registry holding the image; empty scans a local image", "string"},
	{"registry-username", "registry.username", "registry username", "string"},
	{"registry-password", "registry.password", "registry password", "string"},
	{"fail-on-high", "policy.high.enabled", "fail when the high severity threshold is reached", "bool"},
	{"high-threshold", "policy.high.max_count", "number of high severity findings that fails the scan", "int"},
	{"fail-on-medium", "policy.medium.enabled", "fail when the medium severity threshold is reached", "bool"},
	{"medium-threshold", "policy.medium.max_count", "number of medium severity findings that fails the scan", "int"},
	{"fail-on-blacklist", "policy.blacklist.enabled", "fail when a blacklisted CVE is found", "bool"},
	{"blacklist", "policy.blacklist.identifiers", "blacklisted CVE identifiers", "strings"},
	{"json-output", "output.json_path", "write the JSON report to this file", "string"},
	{"markdown-output", "output.markdown_path", "write the Markdown report to this file", "string"},
	{"staging-dir", "output.staging_dir", "directory for the build summary outside a pipeline", "string"},
	{"license", "standalone.license_path", "license file of the standalone scanner", "string"},
	{"mount-path", "standalone.mount_path", "host directory shared with the standalone scanner", "string"},
	{"platform", "standalone.platform", "platform of the standalone scanner image", "string"},
	{"log-level", "logging.level", "log level", "string"},
	{"log-format", "logging.format", "log format: text or json", "string"},
}

func newScanCmd(logger *logrus.Logger) *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan an image and evaluate the policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = v.BindEnv("logging.level", config.EnvPrefix+"_LOGGING_LEVEL", "LOG_LEVEL")

			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			if err := ConfigureLogger(logger, cfg.Logging.Level, cfg.Logging.Format); err != nil {
				return err
			}
			logger.WithField("config", cfg.String()).Debug("Loaded configuration")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := []orchestrator.Option{orchestrator.WithLogger(logger)}
			if cfg.IsStandalone() {
				docker, err := standalone.NewDockerClient(ctx)
				if err != nil {
					return err
				}
				defer docker.Close()
				opts = append(opts, orchestrator.WithDockerAPI(docker))
			}

			o, err := orchestrator.New(cfg, opts...)
			if err != nil {
				return err
			}

			outcome, err := o.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Scan of %s passed (%d vulnerabilities)\n",
				outcome.Report.Image(), outcome.Summary.TotalVulnerabilities)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "configuration file (default: scangate.yaml in ., ./config or /etc/scangate)")
	for _, f := range scanFlags {
		switch f.kind {
		case "bool":
			flags.Bool(f.name, false, f.usage)
		case "int":
			flags.Int(f.name, 1, f.usage)
		case "duration":
			flags.Duration(f.name, 0, f.usage)
		case "strings":
			flags.StringSlice(f.name, nil, f.usage)
		default:
			flags.String(f.name, "", f.usage)
		}
		_ = v.BindPFlag(f.key, flags.Lookup(f.name))
	}

	return cmd
}
