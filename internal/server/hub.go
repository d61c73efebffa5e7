// Package server coordinates client registration, room subscriptions, and
// message fan-out for the relay via the Hub type.
package server

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// Hub manages all WebSocket client connections and routes messages to room
// subscribers. Clients and room membership are guarded by a mutex; delivery
// to each connection goes through a buffered channel so one stalled
// connection never delays the rest of a room.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance. The returned Hub is
// ready to manage WebSocket connections once Run is started.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// roomKey folds a room name so subscriptions and deliveries agree with the
// registry's case-insensitive room matching.
func roomKey(room string) string {
	return strings.ToLower(strings.TrimSpace(room))
}

// Subscribe adds the client to a room's broadcast group. A client belongs to
// at most one room; subscribing again moves it.
func (h *Hub) Subscribe(client *Client, room string) {
	key := roomKey(room)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if client.room != "" {
		if members, ok := h.rooms[client.room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, client.room)
			}
		}
	}

	members, ok := h.rooms[key]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[key] = members
	}
	members[client] = struct{}{}
	client.room = key
}

// Unsubscribe removes the client from its room's broadcast group, if any.
// Safe to call repeatedly; empty rooms are dropped from the map.
func (h *Hub) Unsubscribe(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.unsubscribeLocked(client)
}

func (h *Hub) unsubscribeLocked(client *Client) {
	if client.room == "" {
		return
	}
	if members, ok := h.rooms[client.room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, client.room)
		}
	}
	client.room = ""
}

// SendToRoom delivers a payload to every connection subscribed to the room.
func (h *Hub) SendToRoom(room string, payload []byte) {
	h.deliver(h.roomSnapshot(room, nil), payload)
}

// SendToRoomExcept delivers a payload to every connection in the room other
// than the excluded one.
func (h *Hub) SendToRoomExcept(room string, except *Client, payload []byte) {
	h.deliver(h.roomSnapshot(room, except), payload)
}

// SendToClient delivers a payload to exactly one connection.
func (h *Hub) SendToClient(client *Client, payload []byte) {
	h.deliver([]*Client{client}, payload)
}

// roomSnapshot returns the room's current subscribers, minus the excluded
// client, under the read lock. Fan-out happens against the snapshot so a
// concurrent join or leave never tears a broadcast.
func (h *Hub) roomSnapshot(room string, except *Client) []*Client {
	key := roomKey(room)

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	members, ok := h.rooms[key]
	if !ok {
		return nil
	}
	clients := make([]*Client, 0, len(members))
	for client := range members {
		if client == except {
			continue
		}
		clients = append(clients, client)
	}
	return clients
}

// deliver fans a payload out to each target independently and evicts any
// client whose send buffer is full.
func (h *Hub) deliver(targets []*Client, payload []byte) {
	var failed []*Client
	for _, client := range targets {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	// Non-blocking: the channel may be closed or the buffer full.
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine as it
// runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client %s registered from %s. Total clients: %d", client.id, client.addr, clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.unsubscribeLocked(client)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock
				close(client.send)
				log.Printf("Client %s unregistered from %s. Total clients: %d", client.id, client.addr, clientCount)
			} else {
				h.mutex.Unlock()
			}
		}
	}
}

// removeFailedClients evicts clients that could not accept a delivery and
// closes their send channels.
func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range failed {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			h.unsubscribeLocked(client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Client %s from %s removed due to full send buffer", client.id, client.addr)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to complete
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
