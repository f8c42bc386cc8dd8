package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/neoclaw-ai/tagbot/internal/chatconfig"
	"github.com/neoclaw-ai/tagbot/internal/messages"
	"github.com/neoclaw-ai/tagbot/internal/runtime"
	"github.com/neoclaw-ai/tagbot/internal/tagblock"
)

var testLinks = messages.Links{BaseURL: "https://tags.example.com", BotUsername: "tag_bot"}

func newTestHandler(t *testing.T) (*Handler, *fakeAPI) {
	t.Helper()
	store := chatconfig.NewMemoryStore()
	cfg := &chatconfig.ChatConfig{Fields: []chatconfig.FieldConfig{
		{Field: tagblock.Field{Key: "category", Label: "分类", Kind: tagblock.KindSingleChoice}},
		{Field: tagblock.Field{Key: "author", Label: "作者", Kind: tagblock.KindText}},
	}}
	if err := store.Put(context.Background(), "-1001234", cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	api := &fakeAPI{}
	return New(store, api, testLinks), api
}

func TestChannelPostGetsEditTagsButton(t *testing.T) {
	h, api := newTestHandler(t)

	post := &runtime.Message{ChatID: -1001234, ChatType: runtime.ChatChannel, MessageID: 56, Text: "new film"}
	if err := h.HandleMessage(context.Background(), &captureWriter{}, post); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(api.edits) != 1 {
		t.Fatalf("expected one markup edit, got %d", len(api.edits))
	}
	edit := api.edits[0]
	if edit.ChatID != int64(-1001234) || edit.MessageID != 56 {
		t.Fatalf("unexpected edit target %+v", edit)
	}
	kb, ok := edit.ReplyMarkup.(*models.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard, got %T", edit.ReplyMarkup)
	}
	button := kb.InlineKeyboard[0][0]
	if button.Text != messages.ButtonEditTags || button.URL != "https://t.me/tag_bot?start=tag_-1001234_56" {
		t.Fatalf("unexpected button %+v", button)
	}
}

func TestChannelPostIgnoredCases(t *testing.T) {
	tests := []struct {
		name string
		msg  *runtime.Message
	}{
		{
			name: "unconfigured channel",
			msg:  &runtime.Message{ChatID: -100999, ChatType: runtime.ChatChannel, MessageID: 1, Text: "hi"},
		},
		{
			name: "empty service post",
			msg:  &runtime.Message{ChatID: -1001234, ChatType: runtime.ChatChannel, MessageID: 1},
		},
		{
			name: "group message",
			msg:  &runtime.Message{ChatID: -1001234, ChatType: runtime.ChatSupergroup, MessageID: 1, Text: "hi"},
		},
		{
			name: "private text",
			msg:  &runtime.Message{ChatID: 42, ChatType: runtime.ChatPrivate, MessageID: 1, Text: "hi"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, api := newTestHandler(t)
			w := &captureWriter{}
			if err := h.HandleMessage(context.Background(), w, tt.msg); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if len(api.edits) != 0 || len(w.replies) != 0 {
				t.Fatalf("expected no action, got edits=%d replies=%d", len(api.edits), len(w.replies))
			}
		})
	}
}

func TestChannelPostEditFailureIsNotReturned(t *testing.T) {
	h, api := newTestHandler(t)
	api.err = errors.New("message can't be edited")

	post := &runtime.Message{ChatID: -1001234, ChatType: runtime.ChatChannel, MessageID: 56, HasMedia: true}
	if err := h.HandleMessage(context.Background(), &captureWriter{}, post); err != nil {
		t.Fatalf("expected edit failure to be logged only, got %v", err)
	}
}

func TestForwardedPostOpensTagForm(t *testing.T) {
	h, _ := newTestHandler(t)
	w := &captureWriter{nextID: 70}

	caption := "影片\n\n" + tagblock.Header + "\n▸ 分类: #电影\n▸ 作者: 张三\n" + tagblock.Footer
	msg := &runtime.Message{
		ChatID:    42,
		ChatType:  runtime.ChatPrivate,
		MessageID: 69,
		Text:      caption,
		HasMedia:  true,
		Forward:   &runtime.ForwardOrigin{ChatID: -1001234, MessageID: 56, Username: "movies"},
	}
	if err := h.HandleMessage(context.Background(), w, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(w.replies) != 1 || w.replies[0].Text != messages.TagPreparing {
		t.Fatalf("expected preparing reply, got %#v", w.replies)
	}
	if len(w.edits) != 1 || w.edits[0].id != 70 || w.edits[0].reply.Text != messages.ForwardDetected {
		t.Fatalf("expected detected edit, got %#v", w.edits)
	}

	u, err := url.Parse(w.edits[0].reply.Buttons[0].URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("chat_id") != "-1001234" || q.Get("message_id") != "56" || q.Get("private_chat_id") != "42" ||
		q.Get("user_msg_id") != "69" || q.Get("bot_msg_id") != "70" || q.Get("channel_username") != "movies" {
		t.Fatalf("unexpected form url %q", u)
	}

	var tags map[string]any
	if err := json.Unmarshal([]byte(q.Get("tags")), &tags); err != nil {
		t.Fatalf("decode tags param: %v", err)
	}
	if tags["author"] != "张三" {
		t.Fatalf("unexpected author tag %#v", tags["author"])
	}
	if list, ok := tags["category"].([]any); !ok || len(list) != 1 || list[0] != "电影" {
		t.Fatalf("unexpected category tag %#v", tags["category"])
	}
}

func TestForwardFromUnconfiguredChannelIsIgnored(t *testing.T) {
	h, _ := newTestHandler(t)
	w := &captureWriter{}

	msg := &runtime.Message{
		ChatID:   42,
		ChatType: runtime.ChatPrivate,
		Text:     "x",
		Forward:  &runtime.ForwardOrigin{ChatID: -100999, MessageID: 1},
	}
	if err := h.HandleMessage(context.Background(), w, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(w.replies) != 0 {
		t.Fatalf("expected no reply, got %#v", w.replies)
	}
}

func TestForwardWithoutBlockOmitsTags(t *testing.T) {
	h, _ := newTestHandler(t)
	w := &captureWriter{nextID: 1}

	msg := &runtime.Message{
		ChatID:   42,
		ChatType: runtime.ChatPrivate,
		Text:     "untagged",
		Forward:  &runtime.ForwardOrigin{ChatID: -1001234, MessageID: 1},
	}
	if err := h.HandleMessage(context.Background(), w, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	u, _ := url.Parse(w.edits[0].reply.Buttons[0].URL)
	if u.Query().Has("tags") {
		t.Fatalf("expected no tags param, got %q", u)
	}
}

type fakeAPI struct {
	err   error
	edits []*bot.EditMessageReplyMarkupParams
}

func (f *fakeAPI) EditMessageReplyMarkup(_ context.Context, params *bot.EditMessageReplyMarkupParams) (*models.Message, error) {
	f.edits = append(f.edits, params)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{ID: params.MessageID}, nil
}

type capturedEdit struct {
	id    int
	reply runtime.Reply
}

type captureWriter struct {
	nextID  int
	texts   []string
	replies []runtime.Reply
	edits   []capturedEdit
}

func (w *captureWriter) WriteMessage(_ context.Context, text string) error {
	w.texts = append(w.texts, text)
	return nil
}

func (w *captureWriter) WriteReply(_ context.Context, reply runtime.Reply) (int, error) {
	w.replies = append(w.replies, reply)
	return w.nextID, nil
}

func (w *captureWriter) EditReply(_ context.Context, id int, reply runtime.Reply) error {
	w.edits = append(w.edits, capturedEdit{id: id, reply: reply})
	return nil
}
