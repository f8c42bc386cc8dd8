// Package cli wires Cobra subcommands to application dependencies; it is a thin controller with no business logic.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/neoclaw-ai/tagbot/internal/bootstrap"
	"github.com/neoclaw-ai/tagbot/internal/config"
	"github.com/neoclaw-ai/tagbot/internal/logging"
	"github.com/neoclaw-ai/tagbot/internal/provider"
	"github.com/spf13/cobra"
)

// offlineAnnotation marks commands that never touch the tagbot home.
const offlineAnnotation = "tagbot/offline"

var providerFactory = provider.NewProviderFromConfig

// NewRootCmd creates the root command and registers all subcommands.
func NewRootCmd() *cobra.Command {
	var (
		verbose bool
		debug   bool
	)

	root := &cobra.Command{
		Use:   "tagbot",
		Short: "Telegram channel tagging bot",
		// Let main handle fatal error rendering through structured logs.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case debug:
				logging.SetLevel(slog.LevelDebug)
			case verbose:
				logging.SetLevel(slog.LevelInfo)
			default:
				logging.SetLevel(slog.LevelWarn)
			}

			if isOffline(cmd) {
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			configPath := cfg.ConfigPath()
			firstRun := false
			if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
				firstRun = true
			} else if err != nil {
				return fmt.Errorf("stat tagbot config file %q: %w", configPath, err)
			}

			if err := bootstrap.Initialize(cfg); err != nil {
				return err
			}

			if firstRun {
				// First-run bootstrap is an onboarding path, not a fatal error.
				if _, err := fmt.Fprintf(
					cmd.ErrOrStderr(),
					"First run setup complete.\nEdit config file: %s\nRestart tagbot.\n",
					configPath,
				); err != nil {
					return err
				}
				os.Exit(0)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default to `tagbot start` when no subcommand is provided.
			startCmd, _, err := cmd.Find([]string{"start"})
			if err != nil {
				return err
			}
			startCmd.SetContext(cmd.Context())
			return startCmd.RunE(startCmd, args)
		},
	}

	root.AddCommand(newConfigCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newWebhookCmd())
	root.AddCommand(newBlockCmd())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging (info level)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return root
}

// isOffline reports whether cmd or one of its parents is marked offline.
func isOffline(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[offlineAnnotation] == "true" {
			return true
		}
	}
	return false
}

func offline() map[string]string {
	return map[string]string{offlineAnnotation: "true"}
}
