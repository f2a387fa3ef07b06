package conversation

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/AyushPatel04/dental-chatbot/internal/chatflow"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

const (
	maxChatBodyBytes = 64 << 10
	maxQuestionRunes = 2000
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves POST /chat, the stateless question endpoint used by the
// embeddable widget before a guided session starts.
type Handler struct {
	replies chatflow.ReplyService
	logger  *logging.Logger
}

func NewHandler(replies chatflow.ReplyService, logger *logging.Logger) *Handler {
	if replies == nil {
		panic("conversation: reply service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{replies: replies, logger: logger}
}

// Chat answers {"message": "..."} with {"reply": "..."}.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		h.respond(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	question := strings.TrimSpace(req.Message)
	switch {
	case question == "":
		h.respond(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	case utf8.RuneCountInString(question) > maxQuestionRunes:
		h.respond(w, http.StatusBadRequest, errorResponse{Error: "message is too long"})
		return
	}

	reply, err := h.replies.GenerateReply(r.Context(), question, nil)
	if err != nil {
		h.logger.Error("chat reply failed", "error", err)
		h.respond(w, http.StatusInternalServerError, errorResponse{Error: "AI service error"})
		return
	}
	h.respond(w, http.StatusOK, chatResponse{Reply: reply})
}

func (h *Handler) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("chat response encode failed", "error", err)
	}
}
