package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfuse/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wsMessage is the envelope every hub message ships in.
type wsMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

func dialTestHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub(testLogger())
	hub.Start()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(ServeWS(hub, testLogger()))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestClientReceivesConnectionMessage(t *testing.T) {
	hub, conn := dialTestHub(t)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeConnection, msg.Type)

	var data struct {
		Status   string `json:"status"`
		ClientID string `json:"client_id"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "connected", data.Status)
	assert.NotEmpty(t, data.ClientID)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesClient(t *testing.T) {
	hub, conn := dialTestHub(t)
	readMessage(t, conn) // connection handshake

	hub.BroadcastJSON(TypeConfigUpdate, map[string]string{"default_strategy": "most_recent"})

	msg := readMessage(t, conn)
	assert.Equal(t, TypeConfigUpdate, msg.Type)
	assert.Contains(t, string(msg.Data), "most_recent")
	assert.NotEmpty(t, msg.Timestamp)
}

func TestPublishProgressBroadcastsBatchEvents(t *testing.T) {
	hub, conn := dialTestHub(t)
	readMessage(t, conn)

	hub.PublishProgress(pipeline.ProgressEvent{
		BatchID:   "batch-1",
		Completed: 3,
		Total:     10,
		Failed:    1,
		Timestamp: time.Now(),
	})

	msg := readMessage(t, conn)
	assert.Equal(t, TypeBatchProgress, msg.Type)

	var event pipeline.ProgressEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, "batch-1", event.BatchID)
	assert.Equal(t, 3, event.Completed)
	assert.Equal(t, 10, event.Total)
	assert.Equal(t, 1, event.Failed)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, conn := dialTestHub(t)
	readMessage(t, conn)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestStartIsIdempotent(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	hub.Start()
	hub.Stop()
	hub.Stop()
}
