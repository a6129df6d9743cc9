package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/threatflux/scangate/internal/config"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage encrypted configuration values",
	}
	cmd.AddCommand(newSecretEncryptCmd())
	return cmd
}

func newSecretEncryptCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Encrypt a value for use in the configuration",
		Long: "Encrypt a password for the configuration file. The value is read from the argument " +
			"or, when omitted, from the first line of standard input.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv(config.EnvPrefix + "_SECURITY_ENCRYPTION_KEY")
			}
			if key == "" {
				return config.ErrNoEncryptionKey
			}

			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read value: %w", err)
				}
				value = strings.TrimRight(line, "\r\n")
			}
			if value == "" {
				return errors.New("value cannot be empty")
			}

			encrypted, err := config.EncryptValue(key, value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encrypted)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "encryption key (default: $SCANGATE_SECURITY_ENCRYPTION_KEY)")
	return cmd
}
