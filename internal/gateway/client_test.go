// internal/gateway/client_test.go
package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ezlab-notifier/internal/common/logger"
)

// newTestConn upgrades a loopback connection and returns the server side.
// No pumps run against it, so the client's send buffer fills on its own.
func newTestConn(t *testing.T) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	dialed, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dialed.Close() })

	conn := <-conns
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestClient_EmitAfterSlowConsumerDropDoesNotPanic(t *testing.T) {
	c := NewClient("u1", newTestConn(t), logger.NewNop())

	// Without a write pump draining, the buffer fills completely.
	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, c.Emit("notification:new", map[string]int{"seq": i}))
	}

	err := c.Emit("notification:new", map[string]string{"seq": "overflow"})
	require.Error(t, err, "a full buffer must drop the connection")
	assert.Contains(t, err.Error(), "send buffer full")

	// The tracker can still hold the connection until the read loop
	// tears it down; emits in that gap must fail cleanly.
	for i := 0; i < 3; i++ {
		err := c.Emit("notification:new", map[string]string{"seq": "late"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed")
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c := NewClient("u1", newTestConn(t), logger.NewNop())

	c.Close()
	c.Close()

	err := c.Emit("notification:new", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}
