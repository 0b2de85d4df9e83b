package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-keywords/internal/config"
)

func NewValidateConfigCmd(deps *Dependencies) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Check a daemon configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			deps.Logger.Debug("configuration loaded", "path", path, "tagger", cfg.Tagger.Mode)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration valid (tagger=%s, stt=%t, analysis=%t)\n",
				cfg.Tagger.Mode, cfg.STT.Enabled, cfg.Analysis.Enabled)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "file", "loqa.yaml", "path to configuration file")
	return cmd
}
