// Package tagging rewrites the tag block of a live channel post.
package tagging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/neoclaw-ai/tagbot/internal/chatconfig"
	"github.com/neoclaw-ai/tagbot/internal/logging"
	"github.com/neoclaw-ai/tagbot/internal/messages"
	"github.com/neoclaw-ai/tagbot/internal/runtime"
	"github.com/neoclaw-ai/tagbot/internal/tagblock"
	"github.com/neoclaw-ai/tagbot/internal/telegram"
)

var (
	// ErrMissingTarget is returned when a request does not identify the post
	// or a chat the post can be read through.
	ErrMissingTarget = errors.New("missing target message")
	// ErrConfigNotFound is returned for chats without a tagging schema.
	ErrConfigNotFound = errors.New("chat config not found")
	// ErrFetchMessage is returned when the live post cannot be read.
	ErrFetchMessage = errors.New("failed to fetch original message")
	// ErrEditMessage is returned when Telegram rejects the new caption or text.
	ErrEditMessage = errors.New("failed to update caption")
)

// Bot API length limits, in UTF-16 code units.
const (
	captionLimit = 1024
	textLimit    = 4096
)

// API is the part of the Bot API the tagging flow calls.
type API interface {
	ForwardMessage(ctx context.Context, params *bot.ForwardMessageParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	EditMessageCaption(ctx context.Context, params *bot.EditMessageCaptionParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// SubmitRequest is one tag form submission.
type SubmitRequest struct {
	ChatID    string            `json:"chatId" validate:"required"`
	MessageID int               `json:"messageId" validate:"required,gt=0"`
	Tags      map[string]string `json:"tags"`
	// UserID or PrivateChatID names the chat the post is forwarded to so its
	// current caption can be read.
	UserID        int64 `json:"userId,omitempty"`
	PrivateChatID int64 `json:"privateChatId,omitempty"`
	// UserMsgID and BotMsgID are the helper messages in PrivateChatID that
	// are deleted once the post is tagged.
	UserMsgID       int    `json:"userMsgId,omitempty"`
	BotMsgID        int    `json:"botMsgId,omitempty"`
	ChannelUsername string `json:"channelUsername,omitempty"`
}

// SubmitResult describes a successful submission.
type SubmitResult struct {
	Text           string `json:"text"`
	OptionsLearned bool   `json:"optionsLearned"`
}

// MessageDataRequest asks for a chat's schema and the tags of one text. When
// Text is empty and MessageID and ReaderID are set, the live post is read.
type MessageDataRequest struct {
	ChatID    string
	Text      string
	MessageID int
	ReaderID  int64
}

// MessageData is a chat's schema plus the values decoded from a post.
type MessageData struct {
	Config     *chatconfig.ChatConfig    `json:"config"`
	Tags       map[string]tagblock.Value `json:"tags"`
	Generation string                    `json:"generation"`
}

// Service runs the tagging flow against Telegram and the config store.
type Service struct {
	configs chatconfig.Store
	api     API
	links   messages.Links
	// locks is keyed by chat and message; learnLocks by chat alone. A
	// learnLocks entry is never held while taking a locks entry.
	locks      keyedMutex
	learnLocks keyedMutex
}

// New creates a Service.
func New(configs chatconfig.Store, api API, links messages.Links) *Service {
	return &Service{configs: configs, api: api, links: links}
}

// MessageData loads the chat's schema and decodes the post's tag block.
func (s *Service) MessageData(ctx context.Context, req MessageDataRequest) (*MessageData, error) {
	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id is required", ErrMissingTarget)
	}
	cfg, err := s.config(ctx, chatID)
	if err != nil {
		return nil, err
	}

	text := req.Text
	if text == "" && req.MessageID > 0 && req.ReaderID != 0 {
		post, err := s.readPost(ctx, req.ReaderID, chatID, req.MessageID)
		if err != nil {
			return nil, err
		}
		text = post.text
	}
	return &MessageData{
		Config:     cfg,
		Tags:       tagblock.Decode(text, cfg.Descriptors()),
		Generation: tagblock.Detect(text).String(),
	}, nil
}

// Submit replaces the post's tag block with one built from req.Tags.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" || req.MessageID <= 0 {
		return nil, fmt.Errorf("%w: chat id and message id are required", ErrMissingTarget)
	}
	reader := req.UserID
	if reader == 0 {
		reader = req.PrivateChatID
	}
	if reader == 0 {
		return nil, fmt.Errorf("%w: user id is required to read the post", ErrMissingTarget)
	}

	unlock := s.locks.Lock(chatID + ":" + strconv.Itoa(req.MessageID))
	defer unlock()

	cfg, err := s.config(ctx, chatID)
	if err != nil {
		return nil, err
	}
	post, err := s.readPost(ctx, reader, chatID, req.MessageID)
	if err != nil {
		return nil, err
	}

	clean := tagblock.Strip(post.text)
	learned := s.learnOptions(ctx, chatID, req.Tags)

	text := clean + tagblock.Encode(req.Tags, cfg.Descriptors())
	if err := s.edit(ctx, chatID, req.MessageID, text, post.isCaption); err != nil {
		return nil, err
	}
	logging.Logger().Info("post tagged", "chat_id", chatID, "message_id", req.MessageID, "options_learned", learned)

	if req.PrivateChatID != 0 && req.UserMsgID != 0 && req.BotMsgID != 0 {
		s.notify(ctx, req, chatID, clean)
	}
	return &SubmitResult{Text: text, OptionsLearned: learned}, nil
}

// learnOptions adds unseen choice values to the stored config. The config is
// read again under the chat lock so submits for other posts in the same
// chat do not overwrite each other's options.
func (s *Service) learnOptions(ctx context.Context, chatID string, tags map[string]string) bool {
	unlock := s.learnLocks.Lock(chatID)
	defer unlock()

	cfg, err := s.config(ctx, chatID)
	if err != nil {
		logging.Logger().Warn("failed to reload chat config", "chat_id", chatID, "err", err)
		return false
	}
	if !cfg.LearnOptions(tags) {
		return false
	}
	if err := s.configs.Put(ctx, chatID, cfg); err != nil {
		logging.Logger().Warn("failed to persist learned options", "chat_id", chatID, "err", err)
		return false
	}
	return true
}

func (s *Service) config(ctx context.Context, chatID string) (*chatconfig.ChatConfig, error) {
	cfg, err := s.configs.Get(ctx, chatID)
	if errors.Is(err, chatconfig.ErrNotFound) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load chat config %q: %w", chatID, err)
	}
	return cfg, nil
}

type livePost struct {
	text      string
	isCaption bool
}

// readPost forwards the post to reader, reads it and deletes the forward.
// The Bot API has no call that returns a channel post by ID.
func (s *Service) readPost(ctx context.Context, reader int64, chatID string, messageID int) (livePost, error) {
	fwd, err := s.api.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:              reader,
		FromChatID:          chatRef(chatID),
		MessageID:           messageID,
		DisableNotification: true,
	})
	if err != nil {
		return livePost{}, fmt.Errorf("%w: %v", ErrFetchMessage, err)
	}
	if fwd == nil {
		return livePost{}, ErrFetchMessage
	}
	if _, err := s.api.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: reader, MessageID: fwd.ID}); err != nil {
		logging.Logger().Warn("failed to delete helper forward", "chat_id", reader, "message_id", fwd.ID, "err", err)
	}

	if fwd.Text != "" {
		return livePost{text: fwd.Text}, nil
	}
	return livePost{text: fwd.Caption, isCaption: true}, nil
}

func (s *Service) edit(ctx context.Context, chatID string, messageID int, text string, isCaption bool) error {
	limit := textLimit
	if isCaption {
		limit = captionLimit
	}
	if n := len(utf16.Encode([]rune(text))); n > limit {
		return fmt.Errorf("%w: %d characters exceeds the limit of %d", ErrEditMessage, n, limit)
	}

	// Edits without reply_markup drop the post's keyboard, so re-attach it.
	var keyboard *models.InlineKeyboardMarkup
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		keyboard = telegram.InlineKeyboard([]runtime.Button{{
			Text: messages.ButtonEditTags,
			URL:  s.links.TagDeepLink(id, messageID),
		}})
	}

	var err error
	if isCaption {
		params := &bot.EditMessageCaptionParams{ChatID: chatRef(chatID), MessageID: messageID, Caption: text}
		if keyboard != nil {
			params.ReplyMarkup = keyboard
		}
		_, err = s.api.EditMessageCaption(ctx, params)
	} else {
		params := &bot.EditMessageTextParams{ChatID: chatRef(chatID), MessageID: messageID, Text: text}
		if keyboard != nil {
			params.ReplyMarkup = keyboard
		}
		_, err = s.api.EditMessageText(ctx, params)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEditMessage, err)
	}
	return nil
}

// notify replaces the helper messages in the private chat with a summary.
// Failures are logged only; the post is already tagged.
func (s *Service) notify(ctx context.Context, req SubmitRequest, chatID, clean string) {
	for _, id := range []int{req.UserMsgID, req.BotMsgID} {
		if _, err := s.api.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: req.PrivateChatID, MessageID: id}); err != nil {
			logging.Logger().Warn("failed to delete helper message", "chat_id", req.PrivateChatID, "message_id", id, "err", err)
		}
	}

	_, err := s.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    req.PrivateChatID,
		Text:      messages.TagSuccess(clean),
		ParseMode: models.ParseModeHTML,
		ReplyMarkup: telegram.InlineKeyboard([]runtime.Button{{
			Text: messages.ButtonView,
			URL:  messages.PostLink(chatID, req.ChannelUsername, req.MessageID),
		}}),
	})
	if err != nil {
		logging.Logger().Warn("failed to send tag summary", "chat_id", req.PrivateChatID, "err", err)
	}
}

// chatRef passes numeric IDs as integers and anything else, such as
// @channelname, as a string.
func chatRef(chatID string) any {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return id
	}
	return chatID
}
