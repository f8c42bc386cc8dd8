package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neoclaw-ai/tagbot/internal/autofill"
	"github.com/neoclaw-ai/tagbot/internal/chatconfig"
	"github.com/neoclaw-ai/tagbot/internal/commands"
	"github.com/neoclaw-ai/tagbot/internal/config"
	"github.com/neoclaw-ai/tagbot/internal/costs"
	"github.com/neoclaw-ai/tagbot/internal/handler"
	"github.com/neoclaw-ai/tagbot/internal/logging"
	"github.com/neoclaw-ai/tagbot/internal/messages"
	"github.com/neoclaw-ai/tagbot/internal/ratelimit"
	"github.com/neoclaw-ai/tagbot/internal/scheduler"
	"github.com/neoclaw-ai/tagbot/internal/server"
	"github.com/neoclaw-ai/tagbot/internal/store"
	"github.com/neoclaw-ai/tagbot/internal/tagging"
	"github.com/neoclaw-ai/tagbot/internal/telegram"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the bot and the form API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			report, err := config.ValidateStartup(cfg)
			if err != nil {
				return err
			}
			for _, warning := range report.Warnings {
				logging.Logger().Warn(warning)
			}

			logging.Logger().Info(
				"starting tagbot",
				"mode", cfg.Telegram.Mode,
				"listen", cfg.HTTP.Listen,
				"ai", cfg.AI.Enabled,
				"home", cfg.HomeDir,
			)

			pidFilePath := cfg.PIDPath()
			if err := store.WriteFile(pidFilePath, []byte(fmt.Sprintf("%d\n", os.Getpid()))); err != nil {
				return fmt.Errorf("write pid file %q: %w", pidFilePath, err)
			}
			defer func() {
				os.Remove(pidFilePath)
			}()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(runCtx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	configs, err := chatconfig.Open(cfg.StoreDir(), logging.Logger())
	if err != nil {
		return err
	}
	defer configs.Close()

	listener := telegram.New(cfg.Telegram)
	client, err := listener.Connect(ctx)
	if err != nil {
		return err
	}
	links := messages.Links{BaseURL: cfg.HTTP.PublicURL, BotUsername: listener.Username()}
	router := commands.Router{
		Commands: commands.New(client, links),
		Next:     handler.New(configs, client, links),
	}

	deps := server.Deps{
		Configs:        configs,
		Tagger:         tagging.New(configs, client, links),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}
	filler, limiter, err := newAutofill(cfg)
	if err != nil {
		return err
	}
	if filler != nil {
		deps.Suggester = filler
		deps.Limiter = limiter
		defer limiter.Stop()
	}
	if cfg.Telegram.Mode == config.TelegramModeWebhook {
		deps.Webhook = listener.WebhookHandler()
	}

	jobs, err := newScheduler(cfg, configs)
	if err != nil {
		return err
	}
	if err := jobs.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(ctx, server.New(deps), cfg.HTTP)
		// A failed server takes the bot down with it.
		cancel()
	}()

	listenErr := listener.Listen(ctx, router)
	cancel()
	httpErr := <-serverErr

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	stopErr := jobs.Stop(shutdownCtx)

	if err := errors.Join(listenErr, httpErr, stopErr); err != nil {
		return err
	}
	logging.Logger().Info("tagbot stopped")
	return nil
}

// newAutofill returns nil values when auto-fill is disabled for the process.
func newAutofill(cfg *config.Config) (*autofill.Filler, *ratelimit.KeyedRateLimiter, error) {
	if !cfg.AI.Enabled {
		return nil, nil, nil
	}
	llm := cfg.DefaultLLM()
	modelProvider, err := providerFactory(llm)
	if err != nil {
		return nil, nil, err
	}
	filler := autofill.New(modelProvider, autofill.Options{
		ProviderName:       llm.Provider,
		Model:              llm.Model,
		MaxTokens:          llm.MaxTokens,
		DailyBudgetUSD:     cfg.AI.DailyBudgetUSD,
		ChatDailyBudgetUSD: cfg.AI.ChatDailyBudgetUSD,
		Ledger:             costs.New(cfg.CostsPath()),
	})
	return filler, ratelimit.PerMinute(cfg.AI.RequestsPerMinute), nil
}

type gcStore interface {
	RunGC(ctx context.Context) error
}

func newScheduler(cfg *config.Config, db gcStore) (*scheduler.Service, error) {
	jobs := scheduler.NewService()
	if cfg.Store.GCSchedule == "" {
		return jobs, nil
	}
	err := jobs.Register(scheduler.Job{
		Name: scheduler.JobStoreGC,
		Spec: cfg.Store.GCSchedule,
		Run:  db.RunGC,
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
