// Package presence tracks which connection is bound to which username and
// room. The Registry is the single owner of live User records; the session
// layer consults it for room membership whenever a message is fanned out.
package presence

import (
	"errors"
	"strings"
	"sync"
)

var (
	// ErrEmptyFields is returned when a join request arrives with a blank
	// username or room after whitespace trimming.
	ErrEmptyFields = errors.New("Username and room are required!")

	// ErrUsernameTaken is returned when the requested username collides,
	// case-insensitively, with another user in the same room.
	ErrUsernameTaken = errors.New("Username is taken!")
)

// User binds a connection identity to a display name and a room. The stored
// username and room keep the case the user typed; uniqueness checks fold case.
type User struct {
	ConnectionID string
	Username     string
	Room         string
}

// Registry is the in-memory presence store shared by all connection handlers.
// Every mutation happens under the mutex, so a membership snapshot taken for
// a broadcast never observes a half-applied add or remove.
type Registry struct {
	mu    sync.RWMutex
	users map[string]User
	order []string // connection IDs in join order
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]User),
	}
}

// AddUser validates and registers a user for the given connection. Usernames
// and rooms are trimmed before validation. The room a user lands in adopts
// the display form chosen by its first member, so two people typing "Lobby"
// and "lobby" end up in the same room under one name.
func (r *Registry) AddUser(connectionID, username, room string) (User, error) {
	username = strings.TrimSpace(username)
	room = strings.TrimSpace(room)
	if username == "" || room == "" {
		return User{}, ErrEmptyFields
	}

	foldedName := strings.ToLower(username)
	foldedRoom := strings.ToLower(room)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		existing := r.users[id]
		if strings.ToLower(existing.Room) != foldedRoom {
			continue
		}
		// First member's spelling becomes the room's display form.
		room = existing.Room
		if strings.ToLower(existing.Username) == foldedName {
			return User{}, ErrUsernameTaken
		}
	}

	user := User{ConnectionID: connectionID, Username: username, Room: room}
	r.users[connectionID] = user
	r.order = append(r.order, connectionID)
	return user, nil
}

// RemoveUser removes and returns the user bound to the connection. The second
// return value is false if the connection never joined or was already
// removed; calling RemoveUser again for the same connection is harmless.
func (r *Registry) RemoveUser(connectionID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connectionID]
	if !ok {
		return User{}, false
	}

	delete(r.users, connectionID)
	for i, id := range r.order {
		if id == connectionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return user, true
}

// GetUser returns the user bound to the connection, if any.
func (r *Registry) GetUser(connectionID string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[connectionID]
	return user, ok
}

// GetUsersInRoom returns the room's members in join order. Room names are
// compared case-insensitively, mirroring AddUser.
func (r *Registry) GetUsersInRoom(room string) []User {
	foldedRoom := strings.ToLower(strings.TrimSpace(room))

	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []User
	for _, id := range r.order {
		user := r.users[id]
		if strings.ToLower(user.Room) == foldedRoom {
			users = append(users, user)
		}
	}
	return users
}
