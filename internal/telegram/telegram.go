// Package telegram connects the bot to the Telegram Bot API and feeds updates
// into a runtime.Dispatcher.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/neoclaw-ai/tagbot/internal/config"
	"github.com/neoclaw-ai/tagbot/internal/logging"
	"github.com/neoclaw-ai/tagbot/internal/messages"
	"github.com/neoclaw-ai/tagbot/internal/runtime"
)

type sendMessageFunc func(context.Context, *bot.SendMessageParams) (*models.Message, error)
type editMessageTextFunc func(context.Context, *bot.EditMessageTextParams) (*models.Message, error)

var _ runtime.Listener = (*Listener)(nil)

// Listener receives Telegram updates by long polling or webhook and
// dispatches messages and channel posts.
type Listener struct {
	token     string
	mode      string
	secret    string
	queueSize int

	mu         sync.Mutex
	bot        *bot.Bot
	username   string
	dispatcher *runtime.Dispatcher

	sendMessage     sendMessageFunc
	editMessageText editMessageTextFunc
}

// New creates a listener for cfg. Call Connect before Listen.
func New(cfg config.TelegramConfig) *Listener {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = config.TelegramModePolling
	}
	return &Listener{
		token:     strings.TrimSpace(cfg.Token),
		mode:      mode,
		secret:    strings.TrimSpace(cfg.WebhookSecret),
		queueSize: runtime.DefaultQueueSize,
	}
}

// Connect creates the Bot API client and resolves the bot's username.
func (l *Listener) Connect(ctx context.Context) (*bot.Bot, error) {
	if l.token == "" {
		return nil, errors.New("telegram token is required")
	}

	options := []bot.Option{bot.WithDefaultHandler(l.handleUpdate)}
	if l.mode == config.TelegramModeWebhook && l.secret != "" {
		options = append(options, bot.WithWebhookSecretToken(l.secret))
	}
	b, err := bot.New(l.token, options...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch telegram bot profile: %w", err)
	}
	username := strings.TrimSpace(me.Username)
	logging.Logger().Info(fmt.Sprintf("Connected to Telegram Bot @%s", username), "mode", l.mode)

	l.mu.Lock()
	l.bot = b
	l.username = username
	l.sendMessage = b.SendMessage
	l.editMessageText = b.EditMessageText
	l.mu.Unlock()
	return b, nil
}

// Username returns the bot's @username without the @, once connected.
func (l *Listener) Username() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.username
}

// WebhookHandler serves Telegram webhook requests. It answers 503 until the
// listener is connected.
func (l *Listener) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := l.client()
		if b == nil || l.mode != config.TelegramModeWebhook {
			http.Error(w, "telegram webhook is not active", http.StatusServiceUnavailable)
			return
		}
		b.WebhookHandler()(w, r)
	})
}

// Listen starts receiving updates and dispatches them to handler until ctx
// is done.
func (l *Listener) Listen(ctx context.Context, handler runtime.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	b := l.client()
	if b == nil {
		return errors.New("telegram bot is not connected")
	}

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	dispatcher := runtime.NewDispatcher(handler, l.queueSize)
	if err := dispatcher.Start(dispatchCtx); err != nil {
		cancelDispatch()
		return err
	}
	l.setDispatcher(dispatcher)
	defer func() {
		l.setDispatcher(nil)
		cancelDispatch()
		dispatcher.Wait()
	}()

	if l.mode == config.TelegramModeWebhook {
		go b.StartWebhook(ctx)
	} else {
		go b.Start(ctx)
	}
	<-ctx.Done()
	dispatcher.Stop()
	return nil
}

func (l *Listener) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return
	}

	inbound := toRuntimeMessage(msg)
	logging.Logger().Info(
		"telegram inbound message",
		"chat_id", inbound.ChatID,
		"chat_type", inbound.ChatType,
		"message_id", inbound.MessageID,
		"text", messages.Preview(inbound.Text, 100),
	)

	dispatcher := l.currentDispatcher()
	if dispatcher == nil {
		logging.Logger().Warn("telegram update dropped, listener is not running", "chat_id", inbound.ChatID)
		return
	}
	writer := &telegramWriter{listener: l, chatID: inbound.ChatID}
	if err := dispatcher.Enqueue(ctx, inbound, writer); err != nil {
		logging.Logger().Warn("telegram enqueue failed", "chat_id", inbound.ChatID, "err", err)
	}
}

func toRuntimeMessage(msg *models.Message) *runtime.Message {
	out := &runtime.Message{
		ChatID:    msg.Chat.ID,
		ChatType:  string(msg.Chat.Type),
		MessageID: msg.ID,
		Text:      msg.Text,
		HasMedia:  len(msg.Photo) > 0 || msg.Video != nil || msg.Document != nil || msg.Animation != nil || msg.Audio != nil,
	}
	if out.Text == "" {
		out.Text = msg.Caption
	}
	if msg.From != nil {
		out.UserID = msg.From.ID
	}
	if origin := msg.ForwardOrigin; origin != nil && origin.MessageOriginChannel != nil {
		channel := origin.MessageOriginChannel
		out.Forward = &runtime.ForwardOrigin{
			ChatID:    channel.Chat.ID,
			MessageID: channel.MessageID,
			Username:  channel.Chat.Username,
		}
	}
	return out
}

// InlineKeyboard lays buttons out one per row. It returns nil for no buttons.
func InlineKeyboard(buttons []runtime.Button) *models.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]models.InlineKeyboardButton, 0, len(buttons))
	for _, button := range buttons {
		b := models.InlineKeyboardButton{Text: button.Text}
		if button.WebApp {
			b.WebApp = &models.WebAppInfo{URL: button.URL}
		} else {
			b.URL = button.URL
		}
		rows = append(rows, []models.InlineKeyboardButton{b})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (l *Listener) client() *bot.Bot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bot
}

func (l *Listener) setDispatcher(d *runtime.Dispatcher) {
	l.mu.Lock()
	l.dispatcher = d
	l.mu.Unlock()
}

func (l *Listener) currentDispatcher() *runtime.Dispatcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dispatcher
}

type telegramWriter struct {
	listener *Listener
	chatID   int64
}

func (w *telegramWriter) WriteMessage(ctx context.Context, text string) error {
	_, err := w.WriteReply(ctx, runtime.Reply{Text: text})
	return err
}

func (w *telegramWriter) WriteReply(ctx context.Context, reply runtime.Reply) (int, error) {
	if w == nil || w.listener == nil {
		return 0, errors.New("telegram sender is not configured")
	}
	w.listener.mu.Lock()
	send := w.listener.sendMessage
	w.listener.mu.Unlock()
	if send == nil {
		return 0, errors.New("telegram bot is not connected")
	}

	params := &bot.SendMessageParams{
		ChatID:    w.chatID,
		Text:      reply.Text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard := InlineKeyboard(reply.Buttons); keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	sent, err := send(ctx, params)
	if err != nil {
		return 0, err
	}
	if sent == nil {
		return 0, nil
	}
	return sent.ID, nil
}

func (w *telegramWriter) EditReply(ctx context.Context, messageID int, reply runtime.Reply) error {
	if w == nil || w.listener == nil {
		return errors.New("telegram sender is not configured")
	}
	w.listener.mu.Lock()
	edit := w.listener.editMessageText
	w.listener.mu.Unlock()
	if edit == nil {
		return errors.New("telegram bot is not connected")
	}

	params := &bot.EditMessageTextParams{
		ChatID:    w.chatID,
		MessageID: messageID,
		Text:      reply.Text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard := InlineKeyboard(reply.Buttons); keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	_, err := edit(ctx, params)
	return err
}
