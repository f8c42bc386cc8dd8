package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/neoclaw-ai/tagbot/internal/autofill"
	"github.com/neoclaw-ai/tagbot/internal/chatconfig"
	"github.com/neoclaw-ai/tagbot/internal/logging"
	"github.com/neoclaw-ai/tagbot/internal/tagblock"
	"github.com/neoclaw-ai/tagbot/internal/tagging"
)

type saveConfigRequest struct {
	ChatID string                 `json:"chatId" validate:"required"`
	Config *chatconfig.ChatConfig `json:"config" validate:"required"`
}

type suggestRequest struct {
	ChatID  string `json:"chatId" validate:"required"`
	RawData string `json:"rawData" validate:"max=16384"`
}

type playgroundRequest struct {
	Text   string            `json:"text"`
	Fields []tagblock.Field  `json:"fields"`
	Values map[string]string `json:"values,omitempty"`
}

type playgroundResponse struct {
	Tags       map[string]tagblock.Value `json:"tags"`
	Cleaned    string                    `json:"cleaned"`
	Generation string                    `json:"generation"`
	Encoded    string                    `json:"encoded,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	Success(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	chatID := strings.TrimSpace(r.URL.Query().Get("chat_id"))
	if chatID == "" {
		BadRequest(w, "Missing chat_id")
		return
	}
	cfg, err := s.deps.Configs.Get(r.Context(), chatID)
	if err != nil {
		HandleError(w, err)
		return
	}
	Success(w, cfg)
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var req saveConfigRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Config.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}
	chatID := strings.TrimSpace(req.ChatID)
	if err := s.deps.Configs.Put(r.Context(), chatID, req.Config); err != nil {
		HandleError(w, err)
		return
	}
	logging.Logger().Info("chat config saved", "chat_id", chatID, "fields", len(req.Config.Fields))
	Success(w, map[string]string{"chatId": chatID})
}

func (s *Server) handleMessageData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := tagging.MessageDataRequest{
		ChatID: strings.TrimSpace(q.Get("chat_id")),
		Text:   q.Get("text"),
	}
	if req.ChatID == "" {
		BadRequest(w, "Missing chat_id")
		return
	}
	if raw := q.Get("message_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			BadRequest(w, "Invalid message_id")
			return
		}
		req.MessageID = id
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			BadRequest(w, "Invalid user_id")
			return
		}
		req.ReaderID = id
	}

	data, err := s.deps.Tagger.MessageData(r.Context(), req)
	if err != nil {
		HandleError(w, err)
		return
	}
	Success(w, data)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req tagging.SubmitRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Tagger.Submit(r.Context(), req)
	if err != nil {
		HandleError(w, err)
		return
	}
	Success(w, res)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if s.deps.Suggester == nil {
		HandleError(w, autofill.ErrDisabled)
		return
	}

	chatID := strings.TrimSpace(req.ChatID)
	cfg, err := s.deps.Configs.Get(r.Context(), chatID)
	if errors.Is(err, chatconfig.ErrNotFound) {
		HandleError(w, autofill.ErrDisabled)
		return
	}
	if err != nil {
		HandleError(w, err)
		return
	}
	if !cfg.AIEnabled() {
		HandleError(w, autofill.ErrDisabled)
		return
	}
	if s.deps.Limiter != nil && !s.deps.Limiter.Allow(chatID) {
		logging.Logger().Warn("auto-fill rate limited", "chat_id", chatID)
		Error(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		return
	}

	values, err := s.deps.Suggester.Suggest(r.Context(), chatID, cfg, req.RawData)
	if err != nil {
		HandleError(w, err)
		return
	}
	Success(w, values)
}

// handlePlayground runs the codec on caller-supplied text and fields without
// touching Telegram or the store.
func (s *Server) handlePlayground(w http.ResponseWriter, r *http.Request) {
	var req playgroundRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp := playgroundResponse{
		Tags:       tagblock.Decode(req.Text, req.Fields),
		Cleaned:    tagblock.Strip(req.Text),
		Generation: tagblock.Detect(req.Text).String(),
	}
	if len(req.Values) > 0 {
		resp.Encoded = tagblock.Retag(req.Text, req.Values, req.Fields)
	}
	Success(w, resp)
}

// decode reads a JSON body into dst and validates it, writing the error
// response itself. It reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		BadRequest(w, "Invalid JSON body")
		return false
	}
	if err := s.validator.Validate(dst); err != nil {
		HandleError(w, err)
		return false
	}
	return true
}
