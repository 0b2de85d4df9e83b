// Package cli implements the loqa-keywords command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-keywords/internal/logging"
	"github.com/loqalabs/loqa-keywords/internal/version"
)

type Dependencies struct {
	Stdin  io.Reader
	Logger *slog.Logger
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	var logLevel string
	rootCmd := &cobra.Command{
		Use:           "loqa-keywords",
		Short:         "Extract key terms from spoken transcripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if deps.Logger == nil {
				deps.Logger = logging.NewText(cmd.ErrOrStderr(), logLevel)
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full("loqa-keywords") + "\n")

	rootCmd.AddCommand(NewExtractCmd(deps))
	rootCmd.AddCommand(NewValidateConfigCmd(deps))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Full("loqa-keywords"))
			return err
		},
	}
}
