package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/message"
	"github.com/Tyrowin/relaychat/internal/presence"
	"github.com/Tyrowin/relaychat/internal/profanity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testClockAt = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

type sessionFixture struct {
	hub      *Hub
	registry *presence.Registry
	factory  *message.Factory
	filter   *profanity.Filter
}

func newSessionFixture() *sessionFixture {
	return &sessionFixture{
		hub:      NewHub(),
		registry: presence.NewRegistry(),
		factory:  message.NewFactoryWithClock(func() time.Time { return testClockAt }),
		filter:   profanity.NewFilter(),
	}
}

// connect registers a fresh connection with a bound session, mirroring what
// WebSocketHandler does for a real socket.
func (f *sessionFixture) connect() *Client {
	c := newTestClient(f.hub)
	c.session = NewSession(c, f.hub, f.registry, f.factory, f.filter)
	return c
}

func (f *sessionFixture) join(t *testing.T, c *Client, username, room string) {
	t.Helper()
	require.NoError(t, c.session.Join(username, room))
	drain(c)
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func receiveEvent(t *testing.T, c *Client) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(receivedPayload(t, c), &env))
	return env
}

func receiveMessageEvent(t *testing.T, c *Client) MessagePayload {
	t.Helper()
	env := receiveEvent(t, c)
	require.Equal(t, EventMessage, env.Type)
	var p MessagePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}

func receiveRoomData(t *testing.T, c *Client) RoomDataPayload {
	t.Helper()
	env := receiveEvent(t, c)
	require.Equal(t, EventRoomData, env.Type)
	var p RoomDataPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}

func usernames(p RoomDataPayload) []string {
	names := make([]string, 0, len(p.Users))
	for _, u := range p.Users {
		names = append(names, u.Username)
	}
	return names
}

func TestJoinSendsWelcomeAndRoomData(t *testing.T) {
	f := newSessionFixture()
	alice := f.connect()

	require.NoError(t, alice.session.Join("alice", "lobby"))

	welcome := receiveMessageEvent(t, alice)
	assert.Equal(t, message.AdminUsername, welcome.Username)
	assert.Equal(t, "Welcome!", welcome.Text)
	assert.Equal(t, testClockAt.UnixMilli(), welcome.CreatedAt)

	roomData := receiveRoomData(t, alice)
	assert.Equal(t, "lobby", roomData.Room)
	assert.Equal(t, []string{"alice"}, usernames(roomData))

	requireNoDelivery(t, alice)
}

func TestJoinAnnouncesToOthersButNotJoiner(t *testing.T) {
	f := newSessionFixture()
	alice := f.connect()
	f.join(t, alice, "alice", "lobby")

	bob := f.connect()
	require.NoError(t, bob.session.Join("bob", "lobby"))

	// Alice sees the announcement and the refreshed membership.
	joined := receiveMessageEvent(t, alice)
	assert.Equal(t, message.AdminUsername, joined.Username)
	assert.Equal(t, "bob has joined!", joined.Text)
	roomData := receiveRoomData(t, alice)
	assert.Equal(t, []string{"alice", "bob"}, usernames(roomData))

	// Bob only gets the private welcome plus the membership snapshot.
	welcome := receiveMessageEvent(t, bob)
	assert.Equal(t, "Welcome!", welcome.Text)
	bobRoomData := receiveRoomData(t, bob)
	assert.Equal(t, []string{"alice", "bob"}, usernames(bobRoomData))
	requireNoDelivery(t, bob)
}

func TestJoinRejectionLeavesConnectionUnsubscribed(t *testing.T) {
	f := newSessionFixture()
	alice := f.connect()
	f.join(t, alice, "alice", "room1")

	impostor := f.connect()
	err := impostor.session.Join("Alice", "room1")
	require.ErrorIs(t, err, presence.ErrUsernameTaken)

	// No partial side effects: nothing delivered anywhere, no subscription.
	requireNoDelivery(t, impostor)
	requireNoDelivery(t, alice)
	assert.Len(t, f.registry.GetUsersInRoom("room1"), 1)

	// The same connection may retry and join another room.
	require.NoError(t, impostor.session.Join("Alice", "room2"))
}

func TestJoinValidatesEmptyFields(t *testing.T) {
	f := newSessionFixture()
	c := f.connect()

	err := c.session.Join("   ", "lobby")
	require.ErrorIs(t, err, presence.ErrEmptyFields)
	requireNoDelivery(t, c)
}

func TestJoinTwiceRejected(t *testing.T) {
	f := newSessionFixture()
	alice := f.connect()
	f.join(t, alice, "alice", "lobby")

	err := alice.session.Join("alice2", "lobby")
	require.ErrorIs(t, err, errAlreadyJoined)
}

func TestSendMessageReachesWholeRoomIncludingSender(t *testing.T) {
	f := newSessionFixture()
	alice := f.connect()
	bob := f.connect()
	f.join(t, alice, "alice", "lobby")
	f.join(t, bob, "bob", "lobby")
	drain(alice)

	require.NoError(t, alice.session.SendMessage("hello room"))

	for _, c := range []*Client{alice, bob} {
		msg := receiveMessageEvent(t, c)
		assert.Equal(t, "alice", msg.Username)
		assert.Equal(t, "hello room", msg.Text)
		assert.Equal(t, testClockAt.UnixMilli(), msg.CreatedAt)
	}
}

func TestSendMessageProfanityRejected(t *testing.T) {
	f := newSessionFixture()
	alice := f.connect()
	bob := f.connect()
	f.join(t, alice, "alice", "lobby")
	f.join(t, bob, "bob", "lobby")
	drain(alice)

	err := alice.session.SendMessage("well damn")
	require.ErrorIs(t, err, errProfanity)

	// Nothing is broadcast, not even to the sender.
	requireNoDelivery(t, alice)
	requireNoDelivery(t, bob)
}

func TestSendMessageBeforeJoin(t *testing.T) {
	f := newSessionFixture()
	c := f.connect()

	err := c.session.SendMessage("hi")
	require.ErrorIs(t, err, errNotJoined)
}

func TestSendMessageStaysInRoom(t *testing.T) {
	f := newSessionFixture()
	alice := f.connect()
	carol := f.connect()
	f.join(t, alice, "alice", "room1")
	f.join(t, carol, "carol", "room2")

	require.NoError(t, alice.session.SendMessage("room1 only"))

	msg := receiveMessageEvent(t, alice)
	assert.Equal(t, "room1 only", msg.Text)
	requireNoDelivery(t, carol)
}

func TestSendLocation(t *testing.T) {
	f := newSessionFixture()
	alice := f.connect()
	bob := f.connect()
	f.join(t, alice, "alice", "lobby")
	f.join(t, bob, "bob", "lobby")
	drain(alice)

	require.NoError(t, alice.session.SendLocation(51.5, -0.12))

	for _, c := range []*Client{alice, bob} {
		env := receiveEvent(t, c)
		require.Equal(t, EventLocationMessage, env.Type)
		var p LocationMessagePayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, "alice", p.Username)
		assert.Equal(t, "https://google.com/maps?q=51.5,-0.12", p.URL)
		assert.Equal(t, testClockAt.UnixMilli(), p.CreatedAt)
	}
}

func TestDisconnectAnnouncesDeparture(t *testing.T) {
	f := newSessionFixture()
	alice := f.connect()
	bob := f.connect()
	f.join(t, alice, "alice", "lobby")
	f.join(t, bob, "bob", "lobby")
	drain(alice)

	bob.session.Disconnect()

	left := receiveMessageEvent(t, alice)
	assert.Equal(t, message.AdminUsername, left.Username)
	assert.Equal(t, "bob has left", left.Text)
	roomData := receiveRoomData(t, alice)
	assert.Equal(t, []string{"alice"}, usernames(roomData))

	// The departed connection hears nothing.
	requireNoDelivery(t, bob)

	_, ok := f.registry.GetUser(bob.id)
	assert.False(t, ok)
}

func TestDisconnectWithoutJoinIsSilent(t *testing.T) {
	f := newSessionFixture()
	alice := f.connect()
	f.join(t, alice, "alice", "lobby")

	ghost := f.connect()
	ghost.session.Disconnect()

	requireNoDelivery(t, alice)
	assert.Len(t, f.registry.GetUsersInRoom("lobby"), 1)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := newSessionFixture()
	alice := f.connect()
	bob := f.connect()
	f.join(t, alice, "alice", "lobby")
	f.join(t, bob, "bob", "lobby")
	drain(alice)

	bob.session.Disconnect()
	drain(alice)
	bob.session.Disconnect()

	requireNoDelivery(t, alice)
}

func TestEventsAfterDisconnectRejected(t *testing.T) {
	f := newSessionFixture()
	alice := f.connect()
	f.join(t, alice, "alice", "lobby")

	alice.session.Disconnect()

	require.ErrorIs(t, alice.session.SendMessage("hi"), errNotJoined)
	require.ErrorIs(t, alice.session.Join("alice", "lobby"), errAlreadyJoined)
}
