package integration

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/test/testhelpers"
)

// startChatServer boots a full relay stack behind an httptest server and
// returns its base URL plus the matching WebSocket endpoint. The test server's
// own URL is added to the origin allow-list so local dials succeed; customize
// can tweak the config before it is installed. All resources are torn down
// through t.Cleanup.
func startChatServer(t *testing.T, customize func(cfg *server.Config)) (baseURL, wsURL string) {
	t.Helper()

	cs, hub := testhelpers.NewChatFixture()
	go hub.Run()
	t.Cleanup(func() {
		if err := hub.Shutdown(5 * time.Second); err != nil {
			t.Errorf("Hub shutdown failed: %v", err)
		}
	})

	ts := testhelpers.CreateTestServer(server.SetupRoutes(cs))
	t.Cleanup(ts.Close)

	cfg := server.NewConfig()
	cfg.AllowedOrigins = append(cfg.AllowedOrigins, ts.URL)
	if customize != nil {
		customize(cfg)
	}
	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })

	return ts.URL, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// mustConnect dials the WebSocket endpoint with the given origin and fails
// the test if the handshake does not complete.
func mustConnect(t *testing.T, wsURL, origin string) *websocket.Conn {
	t.Helper()

	conn, err := testhelpers.ConnectWebSocket(wsURL, origin)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
