package wsgateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/feedmix/internal/config"
	"github.com/mohamedkhairy/feedmix/internal/models"
)

type fakeSource struct {
	ch  chan models.ToplistUpdate
	err error
}

func (f *fakeSource) Updates(ctx context.Context) (<-chan models.ToplistUpdate, error) {
	return f.ch, f.err
}

type wireMessage struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
	Code string          `json:"code"`
}

func startHub(t *testing.T, cfg config.WebSocketConfig) (*Hub, *fakeSource, string) {
	t.Helper()
	src := &fakeSource{ch: make(chan models.ToplistUpdate, 4)}
	hub := NewHub(cfg, src, WithUserResolver(func(r *http.Request) string {
		return r.URL.Query().Get("user")
	}))
	require.NoError(t, hub.Start())

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return hub, src, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_BroadcastsSubscribedUpdates(t *testing.T) {
	hub, src, url := startHub(t, config.WebSocketConfig{ReadTimeout: 5 * time.Second, PingInterval: time.Second})
	conn := dial(t, url+"?user=planner")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "subscribe", Kind: "feed"}))
	ack := read(t, conn)
	require.Equal(t, MessageTypeSuccess, ack.Type)

	src.ch <- update(models.UsageMix, "20250615")
	src.ch <- update(models.UsageFeed, "20250615")

	msg := read(t, conn)
	require.Equal(t, MessageTypeRankingUpdate, msg.Type)
	var got models.ToplistUpdate
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, models.UsageFeed, got.Kind)
	assert.Equal(t, "20250615", got.Date)

	assert.Eventually(t, func() bool {
		stats := hub.GetStats()
		return stats.UpdatesReceived == 2 && stats.MessagesSent == 1
	}, 2*time.Second, 10*time.Millisecond)
	stats := hub.GetStats()
	assert.Equal(t, int64(1), stats.ConnectionsActive)
	assert.Equal(t, map[string]int{"feed:*": 1}, stats.Topics)

	conns := hub.registry.GetAll()
	require.Len(t, conns, 1)
	assert.Equal(t, "planner", conns[0].UserID)
}

func TestHub_InvalidClientMessage(t *testing.T) {
	_, _, url := startHub(t, config.WebSocketConfig{ReadTimeout: 5 * time.Second})
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg := read(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, "invalid_message", msg.Code)
}

func TestHub_MaxConnections(t *testing.T) {
	hub, _, url := startHub(t, config.WebSocketConfig{ReadTimeout: 5 * time.Second, MaxConnections: 1})
	dial(t, url)
	require.Eventually(t, func() bool { return hub.GetStats().ConnectionsActive == 1 }, 2*time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, _, url := startHub(t, config.WebSocketConfig{ReadTimeout: 5 * time.Second})
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.GetStats().ConnectionsActive == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.GetStats().ConnectionsActive == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_StartFailsWithoutSource(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, &fakeSource{err: errors.New("redis down")})
	assert.Error(t, hub.Start())
	hub.Stop()
}
