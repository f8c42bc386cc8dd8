package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/neoclaw-ai/tagbot/internal/autofill"
	"github.com/neoclaw-ai/tagbot/internal/chatconfig"
	"github.com/neoclaw-ai/tagbot/internal/ratelimit"
	"github.com/neoclaw-ai/tagbot/internal/tagblock"
	"github.com/neoclaw-ai/tagbot/internal/tagging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChat = "-1001234"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testEnv struct {
	server    *Server
	configs   *chatconfig.MemoryStore
	tagger    *fakeTagger
	suggester *fakeSuggester
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	configs := chatconfig.NewMemoryStore()
	cfg := &chatconfig.ChatConfig{
		Fields: []chatconfig.FieldConfig{
			{Field: tagblock.Field{Key: "category", Label: "分类", Kind: tagblock.KindSingleChoice, Choices: []string{"电影"}}},
			{Field: tagblock.Field{Key: "author", Label: "作者", Kind: tagblock.KindText}},
		},
		AI: &chatconfig.AIConfig{Enabled: true},
	}
	require.NoError(t, configs.Put(context.Background(), testChat, cfg))

	env := &testEnv{configs: configs, tagger: &fakeTagger{}, suggester: &fakeSuggester{}}
	deps := Deps{Configs: configs, Tagger: env.tagger, Suggester: env.suggester}
	if mutate != nil {
		mutate(&deps)
	}
	env.server = New(deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.JSONEq(t, `{"status":"ok"}`, string(body.Data))
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodGet, "/api/config?chat_id="+testChat, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg chatconfig.ChatConfig
	require.NoError(t, json.Unmarshal(body.Data, &cfg))
	assert.Len(t, cfg.Fields, 2)
	assert.Equal(t, tagblock.KindSingleChoice, cfg.Fields[0].Kind)

	rec, body = env.do(t, http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, body.Success)

	rec, body = env.do(t, http.MethodGet, "/api/config?chat_id=-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Config not found", body.Error)
}

func TestSaveConfig(t *testing.T) {
	env := newTestEnv(t, nil)

	payload := map[string]any{
		"chatId": "-100777",
		"config": map[string]any{
			"fields": []map[string]any{
				{"key": "lang", "label": "语言", "type": "multi_select", "options": []string{"中文"}},
			},
		},
	}
	rec, _ := env.do(t, http.MethodPost, "/api/config", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	saved, err := env.configs.Get(context.Background(), "-100777")
	require.NoError(t, err)
	assert.Equal(t, tagblock.KindMultiChoice, saved.Fields[0].Kind)
}

func TestSaveConfigRejectsInvalid(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing chat id", body: map[string]any{"config": map[string]any{"fields": []any{}}}},
		{name: "missing config", body: map[string]any{"chatId": "-1"}},
		{name: "duplicate keys", body: map[string]any{"chatId": "-1", "config": map[string]any{"fields": []map[string]any{
			{"key": "a", "label": "A", "type": "text"},
			{"key": "a", "label": "B", "type": "text"},
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPost, "/api/config", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestRejectsNonJSONBody(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/submit", bytes.NewReader([]byte("chatId=1")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestMessageData(t *testing.T) {
	env := newTestEnv(t, nil)
	env.tagger.data = &tagging.MessageData{Tags: map[string]tagblock.Value{"author": tagblock.ScalarValue("张三")}, Generation: "current"}

	rec, body := env.do(t, http.MethodGet, "/api/message-data?chat_id="+testChat+"&message_id=56&user_id=42&text=hi", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"config":null,"tags":{"author":"张三"},"generation":"current"}`, string(body.Data))
	assert.Equal(t, tagging.MessageDataRequest{ChatID: testChat, Text: "hi", MessageID: 56, ReaderID: 42}, env.tagger.dataReq)

	rec, _ = env.do(t, http.MethodGet, "/api/message-data", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/message-data?chat_id=1&message_id=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit(t *testing.T) {
	env := newTestEnv(t, nil)
	env.tagger.result = &tagging.SubmitResult{Text: "done", OptionsLearned: true}

	rec, body := env.do(t, http.MethodPost, "/api/submit", map[string]any{
		"chatId":    testChat,
		"messageId": 56,
		"userId":    42,
		"tags":      map[string]string{"author": "张三"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"done","optionsLearned":true}`, string(body.Data))
	assert.Equal(t, "张三", env.tagger.submitReq.Tags["author"])
	assert.Equal(t, int64(42), env.tagger.submitReq.UserID)
}

func TestSubmitErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "missing target", err: tagging.ErrMissingTarget, status: http.StatusBadRequest},
		{name: "config missing", err: tagging.ErrConfigNotFound, status: http.StatusNotFound},
		{name: "fetch failed", err: tagging.ErrFetchMessage, status: http.StatusInternalServerError},
		{name: "edit failed", err: tagging.ErrEditMessage, status: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("disk on fire"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.tagger.err = tt.err
			rec, body := env.do(t, http.MethodPost, "/api/submit", map[string]any{"chatId": testChat, "messageId": 1, "userId": 1})
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, body.Success)
		})
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, body := env.do(t, http.MethodPost, "/api/submit", map[string]any{"chatId": testChat})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required fields", body.Error)
	assert.Contains(t, string(body.Data), "messageId")
	assert.Nil(t, env.tagger.submitReq)
}

func TestSuggest(t *testing.T) {
	env := newTestEnv(t, nil)
	env.suggester.values = map[string]string{"category": "电影"}

	rec, body := env.do(t, http.MethodPost, "/api/ai/suggest", map[string]any{"chatId": testChat, "rawData": "新片"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"category":"电影"}`, string(body.Data))
	assert.Equal(t, "新片", env.suggester.raw)
}

func TestSuggestForbiddenWhenDisabled(t *testing.T) {
	env := newTestEnv(t, nil)
	cfg, err := env.configs.Get(context.Background(), testChat)
	require.NoError(t, err)
	cfg.AI.Enabled = false
	require.NoError(t, env.configs.Put(context.Background(), testChat, cfg))

	rec, body := env.do(t, http.MethodPost, "/api/ai/suggest", map[string]any{"chatId": testChat})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AI not configured", body.Error)

	rec, _ = env.do(t, http.MethodPost, "/api/ai/suggest", map[string]any{"chatId": "-1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	noAI := newTestEnv(t, func(d *Deps) { d.Suggester = nil })
	rec, _ = noAI.do(t, http.MethodPost, "/api/ai/suggest", map[string]any{"chatId": testChat})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSuggestRateLimited(t *testing.T) {
	limiter := ratelimit.New(0.001, 1)
	t.Cleanup(limiter.Stop)
	env := newTestEnv(t, func(d *Deps) { d.Limiter = limiter })

	rec, _ := env.do(t, http.MethodPost, "/api/ai/suggest", map[string]any{"chatId": testChat})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = env.do(t, http.MethodPost, "/api/ai/suggest", map[string]any{"chatId": testChat})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSuggestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: autofill.ErrBudgetExceeded, status: http.StatusTooManyRequests},
		{err: autofill.ErrNoJSON, status: http.StatusBadGateway},
		{err: errors.New("upstream"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		env := newTestEnv(t, nil)
		env.suggester.err = tt.err
		rec, _ := env.do(t, http.MethodPost, "/api/ai/suggest", map[string]any{"chatId": testChat})
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
	}
}

func TestPlayground(t *testing.T) {
	env := newTestEnv(t, nil)
	fields := []tagblock.Field{{Key: "author", Label: "作者", Kind: tagblock.KindText}}
	text := "post\n\n" + tagblock.Header + "\n▸ 作者: 张三\n" + tagblock.Footer

	rec, body := env.do(t, http.MethodPost, "/api/playground", map[string]any{
		"text":   text,
		"fields": fields,
		"values": map[string]string{"author": "李四"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp playgroundResponse
	require.NoError(t, json.Unmarshal(body.Data, &resp))
	assert.Equal(t, "post", resp.Cleaned)
	assert.Equal(t, "current", resp.Generation)
	assert.Equal(t, "张三", resp.Tags["author"].Scalar)
	assert.Equal(t, "post\n\n"+tagblock.Header+"\n▸ 作者: 李四\n"+tagblock.Footer, resp.Encoded)
}

func TestWebhookMountedOnlyWhenConfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, _ := env.do(t, http.MethodPost, "/api/bot", map[string]any{"update_id": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	called := false
	hooked := newTestEnv(t, func(d *Deps) {
		d.Webhook = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})
	})
	rec, _ = hooked.do(t, http.MethodPost, "/api/bot", map[string]any{"update_id": 1})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.AllowedOrigins = []string{"https://tags.example.com"} })
	req := httptest.NewRequest(http.MethodOptions, "/api/submit", nil)
	req.Header.Set("Origin", "https://tags.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, "https://tags.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

type fakeTagger struct {
	data      *tagging.MessageData
	dataReq   tagging.MessageDataRequest
	result    *tagging.SubmitResult
	submitReq *tagging.SubmitRequest
	err       error
}

func (f *fakeTagger) MessageData(_ context.Context, req tagging.MessageDataRequest) (*tagging.MessageData, error) {
	f.dataReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeTagger) Submit(_ context.Context, req tagging.SubmitRequest) (*tagging.SubmitResult, error) {
	f.submitReq = &req
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &tagging.SubmitResult{}, nil
	}
	return f.result, nil
}

type fakeSuggester struct {
	values map[string]string
	raw    string
	err    error
}

func (f *fakeSuggester) Suggest(_ context.Context, _ string, _ *chatconfig.ChatConfig, raw string) (map[string]string, error) {
	f.raw = raw
	if f.err != nil {
		return nil, f.err
	}
	if f.values == nil {
		return map[string]string{}, nil
	}
	return f.values, nil
}
