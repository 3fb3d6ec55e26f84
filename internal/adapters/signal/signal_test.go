package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmelnik/streamcast/internal/app"
	"github.com/dmelnik/streamcast/internal/config"
)

// testServer wires a relay behind a real websocket endpoint and returns
// a dial function.
func testServer(t *testing.T) (*app.Registry, func() *ws.Conn) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		ReadLimit:    32768,
		SendBuffer:   32,
		WriteTimeout: 5 * time.Second,
	}
	registry := app.NewRegistry()
	relay := app.NewRelay(registry, "http://relay.test")
	ctrl := NewSignalWSController(relay, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	engine := gin.New()
	engine.GET("/api/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	dial := func() *ws.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws"
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	return registry, dial
}

func readMsg(t *testing.T, conn *ws.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func send(t *testing.T, conn *ws.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func waitForSessions(reg *app.Registry, expected int) bool {
	for range 100 {
		if reg.Count() == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func TestSignal_StreamerViewerHandshake(t *testing.T) {
	reg, dial := testServer(t)

	streamer := dial()
	send(t, streamer, map[string]any{"type": "join-as-streamer"})

	created := readMsg(t, streamer)
	require.Equal(t, "session-created", created["type"])
	sid, ok := created["sessionId"].(string)
	require.True(t, ok)
	assert.Equal(t, "http://relay.test/watch/"+sid, created["viewerJoinUrl"])
	require.True(t, waitForSessions(reg, 1))

	viewer := dial()
	send(t, viewer, map[string]any{"type": "join-as-viewer", "sessionId": sid})

	joined := readMsg(t, viewer)
	require.Equal(t, "joined", joined["type"])
	assert.Equal(t, sid, joined["sessionId"])
	vid := joined["viewerId"].(string)

	notified := readMsg(t, streamer)
	require.Equal(t, "viewer-joined", notified["type"])
	assert.Equal(t, vid, notified["viewerId"])
	assert.Equal(t, float64(1), notified["viewerCount"])

	send(t, streamer, map[string]any{"type": "offer", "sdp": "v=0 offer"})
	offer := readMsg(t, viewer)
	require.Equal(t, "offer", offer["type"])
	assert.Equal(t, "v=0 offer", offer["sdp"])

	send(t, viewer, map[string]any{"type": "answer", "sdp": "v=0 answer"})
	answer := readMsg(t, streamer)
	require.Equal(t, "answer", answer["type"])
	assert.Equal(t, vid, answer["viewerId"])
	assert.Equal(t, "v=0 answer", answer["sdp"])

	send(t, viewer, map[string]any{
		"type":      "ice-candidate",
		"candidate": map[string]any{"candidate": "candidate:1 1 udp 1 10.0.0.2 5000 typ host"},
	})
	cand := readMsg(t, streamer)
	require.Equal(t, "ice-candidate", cand["type"])
	assert.Equal(t, vid, cand["viewerId"])

	viewer.Close()
	left := readMsg(t, streamer)
	require.Equal(t, "viewer-left", left["type"])
	assert.Equal(t, vid, left["viewerId"])
	assert.Equal(t, float64(0), left["viewerCount"])
	assert.Equal(t, 1, reg.Count())
}

func TestSignal_ViewerJoinUnknownSessionClosed(t *testing.T) {
	reg, dial := testServer(t)

	viewer := dial()
	send(t, viewer, map[string]any{"type": "join-as-viewer", "sessionId": "no-such-session"})

	refused := readMsg(t, viewer)
	assert.Equal(t, "no-stream", refused["type"])

	// Server closes the connection after the refusal.
	require.NoError(t, viewer.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := viewer.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, reg.Count())
}

func TestSignal_StreamerCloseEndsViewers(t *testing.T) {
	reg, dial := testServer(t)

	streamer := dial()
	send(t, streamer, map[string]any{"type": "join-as-streamer"})
	created := readMsg(t, streamer)
	sid := created["sessionId"].(string)

	viewer := dial()
	send(t, viewer, map[string]any{"type": "join-as-viewer", "sessionId": sid})
	require.Equal(t, "joined", readMsg(t, viewer)["type"])

	streamer.Close()

	ended := readMsg(t, viewer)
	assert.Equal(t, "stream-ended", ended["type"])

	require.NoError(t, viewer.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := viewer.ReadMessage()
	assert.Error(t, err)
	require.True(t, waitForSessions(reg, 0))
}

func TestSignal_GarbageFramesKeepConnectionAlive(t *testing.T) {
	_, dial := testServer(t)

	conn := dial()
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("not json")))
	send(t, conn, map[string]any{"type": "mystery"})

	// Still usable: a join after garbage succeeds.
	send(t, conn, map[string]any{"type": "join-as-streamer"})
	created := readMsg(t, conn)
	assert.Equal(t, "session-created", created["type"])
}
