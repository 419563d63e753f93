package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/pkg/dto"
)

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) dto.WSEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev dto.WSEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHub_Broadcast(t *testing.T) {
	hub, srv := startHub(t)

	all := dial(t, srv, "")
	lobby := dial(t, srv, "?device_id=LOBBY")
	require.Eventually(t, func() bool { return hub.clientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastEvent(&dto.WSEvent{Type: "employee_status_update", Name: "Alice", Action: "checked in", DeviceID: "MAIN_ENTRANCE"})
	hub.BroadcastEvent(&dto.WSEvent{Type: "employee_status_update", Name: "Bob", Action: "checked out", DeviceID: "LOBBY"})

	assert.Equal(t, "Alice", read(t, all).Name)
	assert.Equal(t, "Bob", read(t, all).Name)

	got := read(t, lobby)
	assert.Equal(t, "Bob", got.Name, "filtered client only sees its device")
	assert.Equal(t, "checked out", got.Action)
}

func TestHub_Disconnect(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.clientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
