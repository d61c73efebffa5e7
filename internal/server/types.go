// Package server defines the tagged event schemas exchanged over the
// WebSocket channel. Every frame is an Envelope whose payload is validated
// against the schema for its event type before it reaches the session layer.
package server

import (
	"encoding/json"
	"strings"

	"github.com/Tyrowin/relaychat/internal/message"
)

// Client -> server event types.
const (
	EventJoin         = "join"
	EventSendMessage  = "sendMessage"
	EventSendLocation = "sendLocation"
)

// Server -> client event types.
const (
	EventMessage         = "message"
	EventLocationMessage = "locationMessage"
	EventRoomData        = "roomData"
	EventError           = "error"
)

// Envelope is the frame format on the wire: a type tag plus a type-specific
// payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload asks to bind this connection to a username and room.
type JoinPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// SendMessagePayload carries a chat message from the client.
type SendMessagePayload struct {
	Text string `json:"text"`
}

// SendLocationPayload carries the client's shared coordinates.
type SendLocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MessagePayload is a text message delivered to room members.
type MessagePayload struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// LocationMessagePayload is a shared map link delivered to room members.
type LocationMessagePayload struct {
	Username  string `json:"username"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt"`
}

// RoomUser is one entry of a room membership snapshot.
type RoomUser struct {
	Username string `json:"username"`
}

// RoomDataPayload is the membership snapshot pushed whenever a room's
// population changes. Users are listed in join order.
type RoomDataPayload struct {
	Room  string     `json:"room"`
	Users []RoomUser `json:"users"`
}

// ErrorPayload reports a rejected client event back to its originator.
type ErrorPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

// marshalEvent encodes an envelope of the given type around the payload.
func marshalEvent(eventType string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Payload: body})
}

// encodeMessage turns a factory message into its wire event: a "message"
// envelope for text, a "locationMessage" envelope for locations.
func encodeMessage(msg message.Message) ([]byte, error) {
	if msg.Kind == message.KindLocation {
		return marshalEvent(EventLocationMessage, LocationMessagePayload{
			Username:  msg.Username,
			URL:       msg.URL,
			CreatedAt: msg.CreatedAt,
		})
	}
	return marshalEvent(EventMessage, MessagePayload{
		Username:  msg.Username,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
