// Package testhelpers provides common utilities and helper functions for
// testing the relay chat server.
//
// This package contains reusable test utilities that are shared across unit
// and integration tests: fixtures wiring a ChatServer with fresh
// collaborators, WebSocket dialing, and typed send/receive helpers for the
// tagged event protocol.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/message"
	"github.com/Tyrowin/relaychat/internal/presence"
	"github.com/Tyrowin/relaychat/internal/profanity"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/gorilla/websocket"
)

// ReceiveTimeout is the default deadline for reading one event in tests.
const ReceiveTimeout = 2 * time.Second

// NewChatFixture wires a ChatServer around a fresh hub, registry, factory,
// and filter, the same way main does.
func NewChatFixture() (*server.ChatServer, *server.Hub) {
	hub := server.NewHub()
	cs := server.NewChatServer(hub, presence.NewRegistry(), message.NewFactory(), profanity.NewFilter())
	return cs, hub
}

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL,
// presenting the given origin to the server's origin check.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendEvent writes one typed envelope on the connection.
func SendEvent(conn *websocket.Conn, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(server.Envelope{Type: eventType, Payload: body})
}

// ReceiveEvent reads one envelope, failing the test if none arrives before
// the timeout.
func ReceiveEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) server.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var env server.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	return env
}

// DecodePayload unmarshals an envelope payload into out.
func DecodePayload(t *testing.T, env server.Envelope, out any) {
	t.Helper()
	if err := json.Unmarshal(env.Payload, out); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", env.Type, err)
	}
}

// ExpectMessage reads the next event and asserts it is a text message with
// the given sender and text.
func ExpectMessage(t *testing.T, conn *websocket.Conn, username, text string) {
	t.Helper()

	env := ReceiveEvent(t, conn, ReceiveTimeout)
	if env.Type != server.EventMessage {
		t.Fatalf("Expected %q event, got %q", server.EventMessage, env.Type)
	}
	var p server.MessagePayload
	DecodePayload(t, env, &p)
	if p.Username != username {
		t.Errorf("Expected message from %q, got %q", username, p.Username)
	}
	if p.Text != text {
		t.Errorf("Expected message text %q, got %q", text, p.Text)
	}
	if p.CreatedAt <= 0 {
		t.Errorf("Expected a server timestamp, got %d", p.CreatedAt)
	}
}

// ExpectRoomData reads the next event and asserts it is a membership
// snapshot listing exactly the given usernames in order.
func ExpectRoomData(t *testing.T, conn *websocket.Conn, room string, users []string) {
	t.Helper()

	env := ReceiveEvent(t, conn, ReceiveTimeout)
	if env.Type != server.EventRoomData {
		t.Fatalf("Expected %q event, got %q", server.EventRoomData, env.Type)
	}
	var p server.RoomDataPayload
	DecodePayload(t, env, &p)
	if p.Room != room {
		t.Errorf("Expected room %q, got %q", room, p.Room)
	}
	if len(p.Users) != len(users) {
		t.Fatalf("Expected %d users, got %d", len(users), len(p.Users))
	}
	for i, username := range users {
		if p.Users[i].Username != username {
			t.Errorf("Expected user %d to be %q, got %q", i, username, p.Users[i].Username)
		}
	}
}

// ExpectErrorEvent reads the next event and asserts it is an error for the
// given originating event with the given message.
func ExpectErrorEvent(t *testing.T, conn *websocket.Conn, event, errText string) {
	t.Helper()

	env := ReceiveEvent(t, conn, ReceiveTimeout)
	if env.Type != server.EventError {
		t.Fatalf("Expected %q event, got %q", server.EventError, env.Type)
	}
	var p server.ErrorPayload
	DecodePayload(t, env, &p)
	if p.Event != event {
		t.Errorf("Expected error for event %q, got %q", event, p.Event)
	}
	if p.Error != errText {
		t.Errorf("Expected error %q, got %q", errText, p.Error)
	}
}

// JoinRoom performs the join handshake and consumes the private welcome and
// the initial membership snapshot.
func JoinRoom(t *testing.T, conn *websocket.Conn, username, room string) {
	t.Helper()

	if err := SendEvent(conn, server.EventJoin, server.JoinPayload{Username: username, Room: room}); err != nil {
		t.Fatalf("Failed to send join event: %v", err)
	}
	ExpectMessage(t, conn, message.AdminUsername, "Welcome!")

	env := ReceiveEvent(t, conn, ReceiveTimeout)
	if env.Type != server.EventRoomData {
		t.Fatalf("Expected %q after welcome, got %q", server.EventRoomData, env.Type)
	}
}

// ExpectNoEvent asserts that nothing arrives on the connection within the
// timeout.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no event, but received %s", raw)
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of events: %v", err)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
