// Package handler reacts to non-command updates: new channel posts get an
// "Edit Tags" button, and posts forwarded to the bot open the tag form.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/neoclaw-ai/tagbot/internal/chatconfig"
	"github.com/neoclaw-ai/tagbot/internal/logging"
	"github.com/neoclaw-ai/tagbot/internal/messages"
	"github.com/neoclaw-ai/tagbot/internal/runtime"
	"github.com/neoclaw-ai/tagbot/internal/tagblock"
	"github.com/neoclaw-ai/tagbot/internal/telegram"
)

// API is the part of the Bot API the handler calls directly.
type API interface {
	EditMessageReplyMarkup(ctx context.Context, params *bot.EditMessageReplyMarkupParams) (*models.Message, error)
}

var _ runtime.Handler = (*Handler)(nil)

// Handler handles channel posts and forwarded posts.
type Handler struct {
	configs chatconfig.Store
	api     API
	links   messages.Links
}

// New creates a Handler.
func New(configs chatconfig.Store, api API, links messages.Links) *Handler {
	return &Handler{configs: configs, api: api, links: links}
}

// HandleMessage implements runtime.Handler.
func (h *Handler) HandleMessage(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	switch {
	case msg.IsChannelPost():
		return h.handleChannelPost(ctx, msg)
	case msg.IsPrivate() && msg.Forward != nil:
		return h.handleForward(ctx, w, msg)
	default:
		return nil
	}
}

func (h *Handler) handleChannelPost(ctx context.Context, msg *runtime.Message) error {
	if msg.Text == "" && !msg.HasMedia {
		return nil
	}
	cfg, err := h.lookup(ctx, msg.ChatID)
	if err != nil || cfg == nil {
		return err
	}

	_, err = h.api.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:    msg.ChatID,
		MessageID: msg.MessageID,
		ReplyMarkup: telegram.InlineKeyboard([]runtime.Button{{
			Text: messages.ButtonEditTags,
			URL:  h.links.TagDeepLink(msg.ChatID, msg.MessageID),
		}}),
	})
	if err != nil {
		logging.Logger().Error("failed to add button to channel post", "chat_id", msg.ChatID, "message_id", msg.MessageID, "err", err)
	}
	return nil
}

func (h *Handler) handleForward(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	origin := msg.Forward
	cfg, err := h.lookup(ctx, origin.ChatID)
	if err != nil || cfg == nil {
		return err
	}

	form := messages.TagForm{
		ChatID:          origin.ChatID,
		MessageID:       origin.MessageID,
		PrivateChatID:   msg.ChatID,
		UserMsgID:       msg.MessageID,
		ChannelUsername: origin.Username,
	}
	if decoded := tagblock.Decode(msg.Text, cfg.Descriptors()); len(decoded) > 0 {
		raw, err := json.Marshal(decoded)
		if err != nil {
			return fmt.Errorf("marshal decoded tags: %w", err)
		}
		form.Tags = string(raw)
	}

	botMsgID, err := w.WriteReply(ctx, runtime.Reply{Text: messages.TagPreparing})
	if err != nil {
		return fmt.Errorf("send preparing message: %w", err)
	}
	form.BotMsgID = botMsgID

	return w.EditReply(ctx, botMsgID, runtime.Reply{
		Text: messages.ForwardDetected,
		Buttons: []runtime.Button{{
			Text:   messages.ButtonStartTagging,
			URL:    h.links.TagFormURL(form),
			WebApp: true,
		}},
	})
}

// lookup returns nil, nil for chats that were never configured.
func (h *Handler) lookup(ctx context.Context, chatID int64) (*chatconfig.ChatConfig, error) {
	cfg, err := h.configs.Get(ctx, strconv.FormatInt(chatID, 10))
	if errors.Is(err, chatconfig.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
