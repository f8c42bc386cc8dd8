package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/neoclaw-ai/tagbot/internal/autofill"
	"github.com/neoclaw-ai/tagbot/internal/chatconfig"
	"github.com/neoclaw-ai/tagbot/internal/logging"
	"github.com/neoclaw-ai/tagbot/internal/tagging"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

// JSON writes data inside an envelope with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, Envelope{Success: status < 400, Data: data})
}

// Success writes a 200 response.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, Envelope{Error: message})
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		logging.Logger().Error("failed to encode response", "err", err)
	}
}

// HandleError maps domain errors to status codes. Unknown errors become 500
// and are logged.
func HandleError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeEnvelope(w, http.StatusBadRequest, Envelope{Error: verr.Message, Data: verr.Fields})
	case errors.Is(err, tagging.ErrMissingTarget):
		BadRequest(w, "Missing required fields")
	case errors.Is(err, tagging.ErrConfigNotFound), errors.Is(err, chatconfig.ErrNotFound):
		NotFound(w, "Config not found")
	case errors.Is(err, tagging.ErrFetchMessage):
		logging.Logger().Warn("failed to fetch post", "err", err)
		Error(w, http.StatusInternalServerError, "Failed to fetch original message")
	case errors.Is(err, tagging.ErrEditMessage):
		logging.Logger().Warn("failed to edit post", "err", err)
		Error(w, http.StatusInternalServerError, "Failed to update caption: "+err.Error())
	case errors.Is(err, autofill.ErrDisabled):
		Error(w, http.StatusForbidden, "AI not configured")
	case errors.Is(err, autofill.ErrBudgetExceeded):
		Error(w, http.StatusTooManyRequests, "AI daily budget exhausted")
	case errors.Is(err, autofill.ErrNoJSON):
		Error(w, http.StatusBadGateway, "AI answer could not be parsed")
	default:
		logging.Logger().Error("unhandled error", "err", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}
