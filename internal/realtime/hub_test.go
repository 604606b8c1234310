package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonchat/supportdesk/pkg/logging"
)

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastReachesClients(t *testing.T) {
	hub := NewHub(nil, logging.Default())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a, _, err := dial(t, srv, "")
	require.NoError(t, err)
	defer a.Close()
	b, _, err := dial(t, srv, "")
	require.NoError(t, err)
	defer b.Close()
	waitForClients(t, hub, 2)

	hub.Broadcast("appointment.created", map[string]string{"id": "a1"})

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev struct {
			Type    string            `json:"type"`
			Payload map[string]string `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, "appointment.created", ev.Type)
		assert.Equal(t, "a1", ev.Payload["id"])
	}
}

func TestHubForgetsClosedClients(t *testing.T) {
	hub := NewHub(nil, logging.Default())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.Close())
	waitForClients(t, hub, 0)
	hub.Broadcast("chat.message", nil)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"https://desk.example.vn"}, logging.Default())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	_, resp, err := dial(t, srv, "https://evil.example.com")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, srv, "https://desk.example.vn")
	require.NoError(t, err)
	conn.Close()
}
