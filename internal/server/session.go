// Package server drives the per-connection protocol state machine that binds
// a connection to a user, relays its messages, and announces its departure.
package server

import (
	"errors"
	"log"

	"github.com/Tyrowin/relaychat/internal/message"
	"github.com/Tyrowin/relaychat/internal/presence"
	"github.com/Tyrowin/relaychat/internal/profanity"
)

var (
	errProfanity      = errors.New("Profanity is not allowed!")
	errNotJoined      = errors.New("Join a room first!")
	errAlreadyJoined  = errors.New("Already joined a room!")
	errMalformedEvent = errors.New("Malformed event payload!")
	errUnknownEvent   = errors.New("Unknown event type!")
)

type sessionState int

const (
	stateUnjoined sessionState = iota
	stateJoined
	stateClosed
)

// Session is the state machine for one connection: Unjoined until a
// successful join, Joined while relaying, Closed once the connection drops.
// All methods are invoked from the connection's read pump, so events for a
// connection are handled strictly in order and state needs no lock.
type Session struct {
	client   *Client
	hub      *Hub
	registry *presence.Registry
	factory  *message.Factory
	filter   *profanity.Filter
	state    sessionState
}

// NewSession creates the protocol handler for a client connection.
func NewSession(client *Client, hub *Hub, registry *presence.Registry, factory *message.Factory, filter *profanity.Filter) *Session {
	return &Session{
		client:   client,
		hub:      hub,
		registry: registry,
		factory:  factory,
		filter:   filter,
	}
}

// Join admits the connection to a room. On a registry rejection the error
// goes back to the caller alone and the connection stays unsubscribed. On
// success the joiner gets a private welcome, the rest of the room is told
// who arrived, and everyone gets a fresh membership snapshot.
func (s *Session) Join(username, room string) error {
	if s.state != stateUnjoined {
		return errAlreadyJoined
	}

	user, err := s.registry.AddUser(s.client.id, username, room)
	if err != nil {
		return err
	}

	s.state = stateJoined
	s.hub.Subscribe(s.client, user.Room)

	s.sendTo(s.client, s.factory.Welcome())
	s.broadcastExcept(user.Room, s.client, s.factory.Joined(user.Username))
	s.broadcastRoomData(user.Room)
	return nil
}

// SendMessage relays a text message to the sender's entire room, including
// the sender. Profane text is rejected back to the sender and never
// broadcast.
func (s *Session) SendMessage(text string) error {
	if s.state != stateJoined {
		return errNotJoined
	}

	user, ok := s.registry.GetUser(s.client.id)
	if !ok {
		// A joined connection always has a registry entry; if not, this is a
		// logic error. Abort the event without surfacing it to the room.
		log.Printf("No presence record for joined connection %s; dropping message", s.client.id)
		return nil
	}

	if s.filter.IsProfane(text) {
		return errProfanity
	}

	s.broadcast(user.Room, s.factory.Text(user.Username, text))
	return nil
}

// SendLocation relays a map link for the given coordinates to the sender's
// entire room. Coordinates are passed through unvalidated.
func (s *Session) SendLocation(latitude, longitude float64) error {
	if s.state != stateJoined {
		return errNotJoined
	}

	user, ok := s.registry.GetUser(s.client.id)
	if !ok {
		log.Printf("No presence record for joined connection %s; dropping location", s.client.id)
		return nil
	}

	s.broadcast(user.Room, s.factory.Location(user.Username, message.MapsURL(latitude, longitude)))
	return nil
}

// Disconnect releases the connection's presence. If the connection had
// joined, the remaining room members are told who left and get a fresh
// membership snapshot; a connection that never joined leaves silently.
// Disconnect is terminal and idempotent.
func (s *Session) Disconnect() {
	if s.state == stateClosed {
		return
	}
	s.state = stateClosed

	user, ok := s.registry.RemoveUser(s.client.id)
	s.hub.Unsubscribe(s.client)
	if !ok {
		return
	}

	s.broadcast(user.Room, s.factory.Left(user.Username))
	s.broadcastRoomData(user.Room)
}

func (s *Session) sendTo(client *Client, msg message.Message) {
	payload, err := encodeMessage(msg)
	if err != nil {
		log.Printf("Error encoding %s message: %v", msg.Kind, err)
		return
	}
	s.hub.SendToClient(client, payload)
}

func (s *Session) broadcast(room string, msg message.Message) {
	payload, err := encodeMessage(msg)
	if err != nil {
		log.Printf("Error encoding %s message: %v", msg.Kind, err)
		return
	}
	s.hub.SendToRoom(room, payload)
}

func (s *Session) broadcastExcept(room string, except *Client, msg message.Message) {
	payload, err := encodeMessage(msg)
	if err != nil {
		log.Printf("Error encoding %s message: %v", msg.Kind, err)
		return
	}
	s.hub.SendToRoomExcept(room, except, payload)
}

// broadcastRoomData pushes the room's membership, in join order, to every
// member. The snapshot comes straight from the registry, so it is always
// consistent with the latest add or remove.
func (s *Session) broadcastRoomData(room string) {
	users := s.registry.GetUsersInRoom(room)
	list := make([]RoomUser, 0, len(users))
	for _, user := range users {
		list = append(list, RoomUser{Username: user.Username})
	}

	payload, err := marshalEvent(EventRoomData, RoomDataPayload{Room: room, Users: list})
	if err != nil {
		log.Printf("Error encoding roomData event: %v", err)
		return
	}
	s.hub.SendToRoom(room, payload)
}
