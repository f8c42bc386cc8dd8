package cli

import (
	"github.com/neoclaw-ai/tagbot/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print merged configuration as TOML",
		// Only reads and prints, so it must not trigger first-run onboarding.
		Annotations: offline(),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.Write(cmd.OutOrStdout())
		},
	}
}
