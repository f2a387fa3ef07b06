package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/AyushPatel04/dental-chatbot/internal/chatflow"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

const (
	defaultMaxUploadBytes = 5 << 20
	maxInputBodyBytes     = 8 << 20
)

// Handler serves the chat session endpoints and the websocket.
type Handler struct {
	registry       *Registry
	maxUploadBytes int64
	logger         *logging.Logger
}

// InboundMessage is what the widget sends over the websocket.
type InboundMessage struct {
	Type  string          `json:"type"` // "input", "ping"
	Input *chatflow.Input `json:"input,omitempty"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string         `json:"type"` // "session", "view", "typing", "busy", "pong", "error"
	SessionID string         `json:"sessionId,omitempty"`
	View      *chatflow.View `json:"view,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// NewHandler creates a web chat handler. maxUploadBytes bounds multipart bodies.
func NewHandler(registry *Registry, maxUploadBytes int64, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{registry: registry, maxUploadBytes: maxUploadBytes, logger: logger}
}

// Routes mounts the chat endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/chat/sessions", h.CreateSession)
	r.Get("/chat/sessions/{id}", h.GetSession)
	r.Post("/chat/sessions/{id}/input", h.PostInput)
	r.Post("/chat/sessions/{id}/upload", h.PostUpload)
	r.Get("/chat/ws", h.HandleWebSocket)
}

// CreateSession starts a conversation and returns the greeting.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.registry.Create()
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

// GetSession returns the full transcript and current view.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// PostInput applies one JSON encoded input.
func (h *Handler) PostInput(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var in chatflow.Input
	if err := json.NewDecoder(io.LimitReader(r.Body, maxInputBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.Kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required")
		return
	}
	h.apply(w, r, s, in)
}

// PostUpload turns a multipart file into an input. At the start stage the file
// goes with the optional text field as a question; elsewhere it is a card photo.
func (h *Handler) PostUpload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	in := uploadInput(s.Snapshot().Stage, header.Filename, data, r.FormValue("text"))
	h.apply(w, r, s, in)
}

func uploadInput(stage chatflow.Stage, name string, data []byte, text string) chatflow.Input {
	file := &chatflow.FileInput{Name: name, Data: data}
	if stage == chatflow.Start {
		return chatflow.Input{Kind: chatflow.InputText, Text: strings.TrimSpace(text), File: file}
	}
	return chatflow.Input{Kind: chatflow.InputUpload, File: file}
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request, s *chatflow.Session, in chatflow.Input) {
	view, err := s.Handle(r.Context(), in)
	if errors.Is(err, chatflow.ErrSessionBusy) {
		writeError(w, http.StatusConflict, "session is busy")
		return
	}
	if err != nil {
		h.logger.Error("webchat: input failed", "session_id", s.ID(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to handle input")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*chatflow.Session, bool) {
	id := chi.URLParam(r, "id")
	s, ok := h.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown session %q", id))
		return nil, false
	}
	return s, true
}

// HandleWebSocket upgrades to WebSocket and handles real-time input.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	s, ok := h.registry.Get(r.URL.Query().Get("session"))
	if !ok {
		s = h.registry.Create()
	}
	snapshot := s.Snapshot()
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: s.ID(), View: &snapshot})

	h.logger.Info("webchat: connection opened", "session_id", s.ID())

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", s.ID(), "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		case "input":
		default:
			continue
		}
		if msg.Input == nil || msg.Input.Kind == "" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Error: "input is required"})
			continue
		}

		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "typing"})
		h.processInput(r.Context(), conn, s, *msg.Input)
	}
}

func (h *Handler) processInput(ctx context.Context, conn *websocket.Conn, s *chatflow.Session, in chatflow.Input) {
	view, err := s.Handle(ctx, in)
	if errors.Is(err, chatflow.ErrSessionBusy) {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "busy", SessionID: s.ID()})
		return
	}
	if err != nil {
		h.logger.Error("webchat: input failed", "session_id", s.ID(), "error", err)
		_ = websocket.JSON.Send(conn, OutboundMessage{
			Type:  "error",
			Error: "Sorry, something went wrong. Please try again.",
		})
		return
	}
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "view", SessionID: s.ID(), View: &view})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
