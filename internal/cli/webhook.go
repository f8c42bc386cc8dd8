package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/neoclaw-ai/tagbot/internal/config"
	"github.com/spf13/cobra"
)

// webhookAPI is the part of the Bot API the webhook commands call.
type webhookAPI interface {
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
}

var webhookClientFactory = func(token string) (webhookAPI, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram bot: %w", err)
	}
	return b, nil
}

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Register or remove the Telegram webhook",
	}
	cmd.AddCommand(newWebhookSetCmd())
	cmd.AddCommand(newWebhookDeleteCmd())
	return cmd
}

func newWebhookSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Point Telegram at <public_url>/api/bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, client, err := loadWebhookClient()
			if err != nil {
				return err
			}
			if err := cfg.HTTP.Validate(); err != nil {
				return fmt.Errorf("http: %w", err)
			}

			url := webhookURL(cfg.HTTP.PublicURL)
			ok, err := client.SetWebhook(cmd.Context(), &bot.SetWebhookParams{
				URL:            url,
				SecretToken:    cfg.Telegram.WebhookSecret,
				AllowedUpdates: []string{"message", "channel_post"},
			})
			if err != nil {
				return fmt.Errorf("set webhook: %w", err)
			}
			if !ok {
				return errors.New("telegram refused the webhook")
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Webhook set to %s\n", url)
			return err
		},
	}
}

func newWebhookDeleteCmd() *cobra.Command {
	var dropPending bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook so the bot can long poll",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, client, err := loadWebhookClient()
			if err != nil {
				return err
			}
			if _, err := client.DeleteWebhook(cmd.Context(), &bot.DeleteWebhookParams{DropPendingUpdates: dropPending}); err != nil {
				return fmt.Errorf("delete webhook: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Webhook deleted")
			return err
		},
	}
	cmd.Flags().BoolVar(&dropPending, "drop-pending", false, "Discard updates queued while the webhook was set")
	return cmd
}

func loadWebhookClient() (*config.Config, webhookAPI, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	token := strings.TrimSpace(cfg.Telegram.Token)
	if token == "" {
		return nil, nil, errors.New("telegram bot token is not configured. Set [telegram] token in config.toml")
	}
	client, err := webhookClientFactory(token)
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}

func webhookURL(publicURL string) string {
	return strings.TrimRight(publicURL, "/") + "/api/bot"
}
