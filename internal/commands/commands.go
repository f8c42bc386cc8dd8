// Package commands provides slash command handling for the bot.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/neoclaw-ai/tagbot/internal/logging"
	"github.com/neoclaw-ai/tagbot/internal/messages"
	"github.com/neoclaw-ai/tagbot/internal/runtime"
)

// API is the part of the Bot API the commands call directly.
type API interface {
	CopyMessage(ctx context.Context, params *bot.CopyMessageParams) (*models.MessageID, error)
	GetChat(ctx context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error)
}

// Handler dispatches supported slash commands.
type Handler struct {
	api   API
	links messages.Links
}

// New creates a new slash command handler.
func New(api API, links messages.Links) *Handler {
	return &Handler{api: api, links: links}
}

// Handle executes one command and reports whether it was handled.
func (h *Handler) Handle(ctx context.Context, msg *runtime.Message, w runtime.ResponseWriter) (handled bool, err error) {
	if w == nil {
		return false, errors.New("response writer is required")
	}
	if msg == nil {
		return false, nil
	}

	cmd, payload := parse(msg.Text)
	switch cmd {
	case "/start":
		return true, h.handleStart(ctx, msg, payload, w)
	case "/config":
		return true, h.handleConfig(ctx, msg, w)
	case "/help", "/commands":
		return true, w.WriteMessage(ctx, messages.Help())
	default:
		return false, nil
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *runtime.Message, payload string, w runtime.ResponseWriter) error {
	if payload == "" {
		return w.WriteMessage(ctx, messages.Welcome)
	}
	if chatID, ok := messages.ParseConfigPayload(payload); ok {
		_, err := w.WriteReply(ctx, runtime.Reply{
			Text: messages.ConfigEntry(chatID),
			Buttons: []runtime.Button{{
				Text:   messages.ButtonOpenConfig,
				URL:    h.links.ConfigFormURL(chatID),
				WebApp: true,
			}},
		})
		return err
	}
	if chatID, messageID, ok := messages.ParseTagPayload(payload); ok {
		return h.handleTagLink(ctx, msg, chatID, messageID, w)
	}
	return w.WriteMessage(ctx, messages.ErrInvalidParam)
}

// handleTagLink copies the channel post into the private chat and answers
// with a button that opens the tag form for it.
func (h *Handler) handleTagLink(ctx context.Context, msg *runtime.Message, chatID int64, messageID int, w runtime.ResponseWriter) error {
	if h.api == nil {
		return errors.New("telegram api is unavailable")
	}

	// copyMessage leaves the post's inline keyboard behind, forwardMessage would not.
	copied, err := h.api.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:     msg.ChatID,
		FromChatID: chatID,
		MessageID:  messageID,
	})
	if err != nil || copied == nil {
		logging.Logger().Warn("copy channel post failed", "chat_id", chatID, "message_id", messageID, "err", err)
		return w.WriteMessage(ctx, messages.ErrMessageNotFound)
	}

	botMsgID, err := w.WriteReply(ctx, runtime.Reply{Text: messages.TagPreparing})
	if err != nil {
		return fmt.Errorf("send preparing message: %w", err)
	}

	form := messages.TagForm{
		ChatID:        chatID,
		MessageID:     messageID,
		PrivateChatID: msg.ChatID,
		UserMsgID:     copied.ID,
		BotMsgID:      botMsgID,
	}
	chat, err := h.api.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil {
		logging.Logger().Warn("get chat info failed", "chat_id", chatID, "err", err)
	} else if chat != nil {
		form.ChannelUsername = chat.Username
	}

	return w.EditReply(ctx, botMsgID, runtime.Reply{
		Text: messages.TagReady,
		Buttons: []runtime.Button{{
			Text:   messages.ButtonStartTagging,
			URL:    h.links.TagFormURL(form),
			WebApp: true,
		}},
	})
}

func (h *Handler) handleConfig(ctx context.Context, msg *runtime.Message, w runtime.ResponseWriter) error {
	if msg.IsPrivate() {
		return w.WriteMessage(ctx, messages.ErrWrongChat)
	}
	_, err := w.WriteReply(ctx, runtime.Reply{
		Text: messages.ConfigPrompt,
		Buttons: []runtime.Button{{
			Text: messages.ButtonConfigure,
			URL:  h.links.ConfigDeepLink(msg.ChatID),
		}},
	})
	return err
}

// Router dispatches slash commands before delegating to the next runtime.Handler.
type Router struct {
	Commands *Handler
	Next     runtime.Handler
}

// HandleMessage runs command dispatch first, then forwards non-command input.
func (r Router) HandleMessage(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	if r.Next == nil {
		return errors.New("next handler is required")
	}
	if r.Commands != nil {
		handled, err := r.Commands.Handle(ctx, msg, w)
		if handled || err != nil {
			return err
		}
	}
	return r.Next.HandleMessage(ctx, w, msg)
}

// parse splits "/cmd@bot payload" into a lowercase command and its first
// argument.
func parse(text string) (cmd, payload string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", ""
	}
	cmd, _, _ = strings.Cut(fields[0], "@")
	if len(fields) > 1 {
		payload = fields[1]
	}
	return strings.ToLower(cmd), payload
}
