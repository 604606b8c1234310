// Package webchat carries the customer chat widget: a websocket per visitor
// with an HTTP fallback, a Redis transcript, and assistant replies.
package webchat

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/salonchat/supportdesk/internal/assistant"
	"github.com/salonchat/supportdesk/internal/notify"
	"github.com/salonchat/supportdesk/internal/observability/metrics"
	"github.com/salonchat/supportdesk/pkg/logging"
)

//go:embed widget.js
var defaultWidgetJS []byte

const (
	historyLimit     = 50
	assistantTurns   = 20
	transportWS      = "websocket"
	transportHTTP    = "http"
	offlineReplyText = "Cảm ơn bạn đã nhắn tin. Nhân viên sẽ phản hồi bạn trong thời gian sớm nhất."
	failureReplyText = "Xin lỗi, đã có lỗi xảy ra. Vui lòng thử lại."
	maxMessageRunes  = 2000
)

// Transcript stores chat history.
type Transcript interface {
	Append(ctx context.Context, sessionID string, msg Message) error
	List(ctx context.Context, sessionID string, limit int64) ([]Message, error)
}

// Responder answers a customer message given the prior turns.
type Responder interface {
	AnswerQuestion(ctx context.Context, question string, history []assistant.ChatMessage) (string, error)
}

// ChatEvent is announced to staff for every chat message.
type ChatEvent struct {
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Transport string    `json:"transport"`
	Timestamp time.Time `json:"timestamp"`
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what the widget receives.
type OutboundMessage struct {
	Type      string           `json:"type"` // "message", "typing", "history", "session", "error", "pong"
	Text      string           `json:"text,omitempty"`
	Role      string           `json:"role,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
	Messages  []HistoryMessage `json:"messages,omitempty"`
}

type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Handler manages widget connections and messages.
type Handler struct {
	transcript Transcript
	responder  Responder
	notifier   notify.Notifier
	metrics    *metrics.ChatMetrics
	logger     *logging.Logger
	widgetJS   []byte
	archiver   Archiver

	mu       sync.RWMutex
	sessions map[string]*websocket.Conn
}

// NewHandler creates the web chat handler. responder may be nil, in which
// case customers get a holding reply and staff answer by hand. An empty
// widgetJS serves the bundled widget.
func NewHandler(transcript Transcript, responder Responder, notifier notify.Notifier, m *metrics.ChatMetrics, widgetJS []byte, logger *logging.Logger) *Handler {
	if transcript == nil {
		panic("webchat: transcript store required")
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	if len(widgetJS) == 0 {
		widgetJS = defaultWidgetJS
	}
	return &Handler{
		transcript: transcript,
		responder:  responder,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
		widgetJS:   widgetJS,
		sessions:   make(map[string]*websocket.Conn),
	}
}

// PublicRoutes is mounted under /chat.
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/widget.js", h.HandleWidgetJS)
	r.Handle("/ws", http.HandlerFunc(h.HandleWebSocket))
	r.Post("/message", h.HandleMessage)
	r.Get("/history", h.HandleHistory)
	return r
}

// Routes is mounted under /api/staff/chat.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/sessions", h.listSessions)
	r.Get("/sessions/{sessionID}", h.staffHistory)
	r.Post("/sessions/{sessionID}/reply", h.staffReply)
	r.Post("/sessions/{sessionID}/archive", h.archiveSession)
	return r
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return hex.EncodeToString(b)
}

func validSessionID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// HandleWebSocket upgrades the widget connection.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()
	sessionID := r.URL.Query().Get("session")
	if !validSessionID(sessionID) {
		sessionID = generateSessionID()
	}

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: sessionID})
	if msgs, err := h.transcript.List(ctx, sessionID, historyLimit); err != nil {
		h.logger.Warn("webchat: load history failed", "session_id", sessionID, "error", err)
	} else if len(msgs) > 0 {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: toHistory(msgs)})
	}

	h.mu.Lock()
	h.sessions[sessionID] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.sessions[sessionID] == conn {
			delete(h.sessions, sessionID)
		}
		h.mu.Unlock()
	}()

	h.logger.Info("webchat: connection opened", "session_id", sessionID)
	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sessionID, "error", err)
			return
		}
		switch {
		case msg.Type == "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
		case msg.Type == "message" && strings.TrimSpace(msg.Text) != "":
			h.SendToSession(sessionID, OutboundMessage{Type: "typing"})
			reply, err := h.processMessage(ctx, sessionID, msg.Text, transportWS)
			if err != nil {
				h.SendToSession(sessionID, OutboundMessage{Type: "error", Role: RoleAssistant, Text: failureReplyText})
				continue
			}
			h.SendToSession(sessionID, outbound(reply))
		}
	}
}

// processMessage records the customer message, obtains a reply and records it
// too. Staff are told about both.
func (h *Handler) processMessage(ctx context.Context, sessionID, text, transport string) (Message, error) {
	text = strings.TrimSpace(text)
	if r := []rune(text); len(r) > maxMessageRunes {
		text = string(r[:maxMessageRunes])
	}

	prior, err := h.transcript.List(ctx, sessionID, assistantTurns)
	if err != nil {
		h.logger.Warn("webchat: load context failed", "session_id", sessionID, "error", err)
		prior = nil
	}

	inbound := Message{ID: uuid.NewString(), Role: RoleCustomer, Text: text, Transport: transport, Timestamp: time.Now().UTC()}
	if err := h.record(ctx, sessionID, inbound); err != nil {
		return Message{}, err
	}

	replyText := offlineReplyText
	if h.responder != nil {
		answer, err := h.responder.AnswerQuestion(ctx, text, toChatHistory(prior))
		switch {
		case err == nil && strings.TrimSpace(answer) != "":
			replyText = strings.TrimSpace(answer)
		case err != nil && !errors.Is(err, assistant.ErrUnavailable):
			h.logger.Warn("webchat: assistant failed, sending holding reply", "session_id", sessionID, "error", err)
		}
	}

	reply := Message{ID: uuid.NewString(), Role: RoleAssistant, Text: replyText, Transport: transport, Timestamp: time.Now().UTC()}
	if err := h.record(ctx, sessionID, reply); err != nil {
		return Message{}, err
	}
	return reply, nil
}

func (h *Handler) record(ctx context.Context, sessionID string, msg Message) error {
	if err := h.transcript.Append(ctx, sessionID, msg); err != nil {
		h.logger.Error("webchat: append transcript failed", "session_id", sessionID, "error", err)
		return err
	}
	h.metrics.ObserveMessage(msg.Role, msg.Transport)
	event := ChatEvent{SessionID: sessionID, Role: msg.Role, Text: msg.Text, Transport: msg.Transport, Timestamp: msg.Timestamp}
	if err := h.notifier.Notify(ctx, notify.KindChatMessage, event); err != nil {
		h.logger.Warn("webchat: notify staff failed", "session_id", sessionID, "error", err)
	}
	return nil
}

// SendToSession pushes msg to the visitor's open websocket, if any.
func (h *Handler) SendToSession(sessionID string, msg OutboundMessage) bool {
	h.mu.RLock()
	conn, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if err := websocket.JSON.Send(conn, msg); err != nil {
		h.logger.Debug("webchat: push failed", "session_id", sessionID, "error", err)
		return false
	}
	return true
}

// ActiveSessions lists sessions with an open websocket.
func (h *Handler) ActiveSessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		out = append(out, id)
	}
	return out
}

// HandleMessage is the HTTP fallback; the reply is returned in the response.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	} else if !validSessionID(req.SessionID) {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return
	}

	reply, err := h.processMessage(r.Context(), req.SessionID, req.Text, transportHTTP)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"reply":      toHistory([]Message{reply})[0],
	})
}

// HandleHistory returns a visitor's transcript.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if !validSessionID(sessionID) {
		writeError(w, http.StatusBadRequest, "session parameter required")
		return
	}
	h.writeHistory(w, r, sessionID, 100)
}

func (h *Handler) writeHistory(w http.ResponseWriter, r *http.Request, sessionID string, limit int64) {
	msgs, err := h.transcript.List(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("webchat: failed to load history", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": toHistory(msgs)})
}

// HandleWidgetJS serves the embeddable widget script.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(h.widgetJS)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": h.ActiveSessions()})
}

func (h *Handler) staffHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !validSessionID(sessionID) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	h.writeHistory(w, r, sessionID, 0)
}

// staffReply lets a staff member answer a visitor directly.
func (h *Handler) staffReply(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !validSessionID(sessionID) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	msg := Message{ID: uuid.NewString(), Role: RoleStaff, Text: strings.TrimSpace(req.Text), Transport: transportHTTP, Timestamp: time.Now().UTC()}
	if err := h.record(r.Context(), sessionID, msg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store reply")
		return
	}
	delivered := h.SendToSession(sessionID, outbound(msg))
	writeJSON(w, http.StatusOK, map[string]any{"delivered": delivered, "message": toHistory([]Message{msg})[0]})
}

func outbound(m Message) OutboundMessage {
	return OutboundMessage{Type: "message", Role: m.Role, Text: m.Text, Timestamp: m.Timestamp.Format(time.RFC3339)}
}

func toHistory(msgs []Message) []HistoryMessage {
	out := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, HistoryMessage{Role: m.Role, Text: m.Text, Timestamp: m.Timestamp.Format(time.RFC3339)})
	}
	return out
}

// toChatHistory maps transcript roles onto model turns; staff replies count
// as the venue speaking.
func toChatHistory(msgs []Message) []assistant.ChatMessage {
	out := make([]assistant.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		role := assistant.RoleAssistant
		if m.Role == RoleCustomer {
			role = assistant.RoleUser
		}
		out = append(out, assistant.ChatMessage{Role: role, Content: m.Text})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
