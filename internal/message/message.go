// Package message builds the immutable chat messages relayed to clients.
// Timestamps are always assigned from the server clock at construction time,
// so delivery ordering looks consistent to clients whose own clocks disagree.
package message

import (
	"fmt"
	"time"
)

// AdminUsername is the reserved sender for system notices such as the
// welcome greeting and join/leave announcements.
const AdminUsername = "Admin"

// Kind discriminates the two message variants carried by the relay.
type Kind string

const (
	// KindText is a plain chat message.
	KindText Kind = "text"
	// KindLocation is a shared map link.
	KindLocation Kind = "location"
)

// Message is an immutable record handed to the broadcast layer. Text is set
// for KindText, URL for KindLocation. CreatedAt is Unix milliseconds from the
// server clock.
type Message struct {
	Kind      Kind
	Username  string
	Text      string
	URL       string
	CreatedAt int64
}

// Factory constructs messages with server-assigned timestamps. The clock is
// injectable so tests can pin time.
type Factory struct {
	now func() time.Time
}

// NewFactory creates a factory backed by the real clock.
func NewFactory() *Factory {
	return NewFactoryWithClock(time.Now)
}

// NewFactoryWithClock creates a factory using the given clock.
func NewFactoryWithClock(now func() time.Time) *Factory {
	return &Factory{now: now}
}

// Text builds a text message stamped with the current server time.
func (f *Factory) Text(username, text string) Message {
	return Message{
		Kind:      KindText,
		Username:  username,
		Text:      text,
		CreatedAt: f.now().UnixMilli(),
	}
}

// Location builds a location message carrying a map link.
func (f *Factory) Location(username, url string) Message {
	return Message{
		Kind:      KindLocation,
		Username:  username,
		URL:       url,
		CreatedAt: f.now().UnixMilli(),
	}
}

// Welcome is the private greeting sent to a freshly joined user.
func (f *Factory) Welcome() Message {
	return f.Text(AdminUsername, "Welcome!")
}

// Joined announces a new room member to everyone else in the room.
func (f *Factory) Joined(username string) Message {
	return f.Text(AdminUsername, username+" has joined!")
}

// Left announces a departure to the remaining room members.
func (f *Factory) Left(username string) Message {
	return f.Text(AdminUsername, username+" has left")
}

// MapsURL returns the shareable map link for a coordinate pair.
func MapsURL(latitude, longitude float64) string {
	return fmt.Sprintf("https://google.com/maps?q=%v,%v", latitude, longitude)
}
