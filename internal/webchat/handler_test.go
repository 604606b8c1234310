package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/salonchat/supportdesk/internal/assistant"
	"github.com/salonchat/supportdesk/pkg/logging"
)

type memTranscript struct {
	mu    sync.Mutex
	store map[string][]Message
}

func newMemTranscript() *memTranscript {
	return &memTranscript{store: make(map[string][]Message)}
}

func (m *memTranscript) Append(_ context.Context, sessionID string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[sessionID] = append(m.store[sessionID], msg)
	return nil
}

func (m *memTranscript) List(_ context.Context, sessionID string, limit int64) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.store[sessionID]
	if limit > 0 && int64(len(msgs)) > limit {
		msgs = msgs[int64(len(msgs))-limit:]
	}
	return append([]Message(nil), msgs...), nil
}

func (m *memTranscript) messages(sessionID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.store[sessionID]...)
}

type stubResponder struct {
	answer  string
	err     error
	history [][]assistant.ChatMessage
}

func (s *stubResponder) AnswerQuestion(_ context.Context, _ string, history []assistant.ChatMessage) (string, error) {
	s.history = append(s.history, history)
	return s.answer, s.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ChatEvent
}

func (r *recordingNotifier) Notify(_ context.Context, _ string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := payload.(ChatEvent); ok {
		r.events = append(r.events, ev)
	}
	return nil
}

func newTestHandler(responder Responder) (*Handler, *memTranscript, *recordingNotifier) {
	ts := newMemTranscript()
	n := &recordingNotifier{}
	if responder == nil {
		return NewHandler(ts, nil, n, nil, nil, logging.New("error")), ts, n
	}
	return NewHandler(ts, responder, n, nil, nil, logging.New("error")), ts, n
}

func TestGenerateSessionID(t *testing.T) {
	s1 := generateSessionID()
	s2 := generateSessionID()
	assert.Len(t, s1, 32)
	assert.NotEqual(t, s1, s2)
	assert.True(t, validSessionID(s1))
	assert.False(t, validSessionID("../etc"))
	assert.False(t, validSessionID(""))
}

func TestHandleMessageHTTP(t *testing.T) {
	responder := &stubResponder{answer: "Dạ, spa mở cửa lúc 9 giờ."}
	h, ts, n := newTestHandler(responder)

	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(`{"session_id":"sess1","text":" Mấy giờ mở cửa? "}`))
	w := httptest.NewRecorder()
	h.PublicRoutes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		SessionID string         `json:"session_id"`
		Reply     HistoryMessage `json:"reply"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sess1", resp.SessionID)
	assert.Equal(t, RoleAssistant, resp.Reply.Role)
	assert.Equal(t, "Dạ, spa mở cửa lúc 9 giờ.", resp.Reply.Text)

	msgs := ts.store["sess1"]
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleCustomer, msgs[0].Role)
	assert.Equal(t, "Mấy giờ mở cửa?", msgs[0].Text)
	assert.Equal(t, transportHTTP, msgs[0].Transport)

	require.Len(t, n.events, 2)
	assert.Equal(t, RoleCustomer, n.events[0].Role)
	assert.Equal(t, RoleAssistant, n.events[1].Role)
}

func TestHandleMessagePassesPriorTurns(t *testing.T) {
	responder := &stubResponder{answer: "ok"}
	h, ts, _ := newTestHandler(responder)
	ts.store["sess1"] = []Message{
		{Role: RoleCustomer, Text: "Xin chào"},
		{Role: RoleStaff, Text: "Chào chị"},
	}

	_, err := h.processMessage(context.Background(), "sess1", "Đặt lịch", transportHTTP)
	require.NoError(t, err)

	require.Len(t, responder.history, 1)
	assert.Equal(t, []assistant.ChatMessage{
		{Role: assistant.RoleUser, Content: "Xin chào"},
		{Role: assistant.RoleAssistant, Content: "Chào chị"},
	}, responder.history[0])
}

func TestHandleMessageHoldingReply(t *testing.T) {
	cases := []struct {
		name      string
		responder Responder
	}{
		{"no assistant", nil},
		{"assistant unavailable", &stubResponder{err: assistant.ErrUnavailable}},
		{"assistant error", &stubResponder{err: errors.New("timeout")}},
		{"blank answer", &stubResponder{answer: "  "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _, _ := newTestHandler(tc.responder)
			reply, err := h.processMessage(context.Background(), "sess1", "hi", transportHTTP)
			require.NoError(t, err)
			assert.Equal(t, offlineReplyText, reply.Text)
		})
	}
}

func TestHandleMessageValidation(t *testing.T) {
	h, _, _ := newTestHandler(nil)
	for _, body := range []string{`{`, `{"text":""}`, `{"session_id":"a/b","text":"hi"}`} {
		w := httptest.NewRecorder()
		h.HandleMessage(w, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w := httptest.NewRecorder()
	h.HandleMessage(w, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(`{"text":"hi"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["session_id"])
}

func TestHandleHistory(t *testing.T) {
	h, ts, _ := newTestHandler(nil)
	ts.store["sess1"] = []Message{
		{Role: RoleCustomer, Text: "Hello"},
		{Role: RoleAssistant, Text: "Hi there!"},
	}

	w := httptest.NewRecorder()
	h.HandleHistory(w, httptest.NewRequest(http.MethodGet, "/history?session=sess1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []HistoryMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "Hello", resp.Messages[0].Text)

	w = httptest.NewRecorder()
	h.HandleHistory(w, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleWidgetJS(t *testing.T) {
	h := NewHandler(newMemTranscript(), nil, nil, nil, []byte("(function(){})();"), nil)
	w := httptest.NewRecorder()
	h.HandleWidgetJS(w, httptest.NewRequest(http.MethodGet, "/widget.js", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/javascript", w.Header().Get("Content-Type"))
	assert.Equal(t, "(function(){})();", w.Body.String())

	h = NewHandler(newMemTranscript(), nil, nil, nil, nil, nil)
	w = httptest.NewRecorder()
	h.HandleWidgetJS(w, httptest.NewRequest(http.MethodGet, "/widget.js", nil))
	assert.Contains(t, w.Body.String(), "/chat/ws")
}

func dialWidget(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws?session=" + session
	conn, err := websocket.Dial(url, "", srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebSocketConversation(t *testing.T) {
	h, ts, _ := newTestHandler(&stubResponder{answer: "Chào bạn!"})
	ts.store["sess1"] = []Message{{Role: RoleCustomer, Text: "earlier", Timestamp: time.Now()}}

	r := chi.NewRouter()
	r.Mount("/chat", h.PublicRoutes())
	r.Mount("/staff/chat", h.Routes())
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWidget(t, srv, "sess1")

	var msg OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &msg))
	assert.Equal(t, "session", msg.Type)
	assert.Equal(t, "sess1", msg.SessionID)

	require.NoError(t, websocket.JSON.Receive(conn, &msg))
	assert.Equal(t, "history", msg.Type)
	require.Len(t, msg.Messages, 1)

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "ping"}))
	require.NoError(t, websocket.JSON.Receive(conn, &msg))
	assert.Equal(t, "pong", msg.Type)

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "message", Text: "Xin chào"}))
	require.NoError(t, websocket.JSON.Receive(conn, &msg))
	assert.Equal(t, "typing", msg.Type)
	msg = OutboundMessage{}
	require.NoError(t, websocket.JSON.Receive(conn, &msg))
	assert.Equal(t, "message", msg.Type)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "Chào bạn!", msg.Text)

	// Staff reply reaches the open socket.
	resp, err := http.Post(srv.URL+"/staff/chat/sessions/sess1/reply", "application/json", strings.NewReader(`{"text":"Em là nhân viên"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var staff struct {
		Delivered bool `json:"delivered"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&staff))
	assert.True(t, staff.Delivered)

	msg = OutboundMessage{}
	require.NoError(t, websocket.JSON.Receive(conn, &msg))
	assert.Equal(t, RoleStaff, msg.Role)
	assert.Equal(t, "Em là nhân viên", msg.Text)

	assert.Equal(t, []string{"sess1"}, h.ActiveSessions())
	assert.Len(t, ts.messages("sess1"), 4)
}

func TestStaffReplyToClosedSession(t *testing.T) {
	h, ts, n := newTestHandler(nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/sess9/reply", strings.NewReader(`{"text":"hello"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"delivered":false`)
	require.Len(t, ts.store["sess9"], 1)
	assert.Equal(t, RoleStaff, ts.store["sess9"][0].Role)
	require.Len(t, n.events, 1)

	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/sess9/reply", strings.NewReader(`{"text":" "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
