// Package cli wires the scangate commands.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// BuildInfo describes the running binary
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// NewRootCommand creates the scangate command tree
func NewRootCommand(logger *logrus.Logger, info BuildInfo) *cobra.Command {
	if logger == nil {
		logger = logrus.New()
	}

	rootCmd := &cobra.Command{
		Use:   "scangate",
		Short: "Container image vulnerability gate",
		Long: "scangate scans a container image with a NeuVector-compatible scanning service " +
			"or a local scanner container and fails when the findings break the configured policy.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newScanCmd(logger))
	rootCmd.AddCommand(newSimulateCmd(logger))
	rootCmd.AddCommand(newSecretCmd())
	rootCmd.AddCommand(newVersionCmd(info))

	return rootCmd
}
