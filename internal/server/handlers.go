// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in chat page.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/Tyrowin/relaychat/internal/message"
	"github.com/Tyrowin/relaychat/internal/presence"
	"github.com/Tyrowin/relaychat/internal/profanity"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// ChatServer bundles the hub with the collaborators every session needs:
// the presence registry, the message factory, and the profanity filter.
// It is constructed once in main and handed to the route setup, so there is
// no package-level state tying sessions together.
type ChatServer struct {
	hub      *Hub
	registry *presence.Registry
	factory  *message.Factory
	filter   *profanity.Filter
}

// NewChatServer creates the handler set around an explicitly owned hub,
// registry, factory, and filter.
func NewChatServer(hub *Hub, registry *presence.Registry, factory *message.Factory, filter *profanity.Filter) *ChatServer {
	return &ChatServer{
		hub:      hub,
		registry: registry,
		factory:  factory,
		filter:   filter,
	}
}

// Hub returns the hub this server routes through, for shutdown coordination.
func (cs *ChatServer) Hub() *Hub {
	return cs.hub
}

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection, binds a fresh
// session to the new client, and registers it with the hub, which launches
// the read/write pumps.
func (cs *ChatServer) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, cs.hub, r.RemoteAddr)
	client.session = NewSession(client, cs.hub, cs.registry, cs.factory, cs.filter)

	cs.hub.register <- client
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Relay chat server is running!")
}

// ChatPageHandler serves the built-in chat page: a join form for username and
// room, the message feed, a sidebar with the room's members, and controls for
// sending text and sharing location.
func (cs *ChatServer) ChatPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Relay Chat</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #chat { display: none; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #sidebar {
            border: 1px solid #ccc;
            padding: 10px;
            margin: 10px 0;
            background-color: #f1f1f1;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .admin { color: gray; font-style: italic; }
        .error { color: #721c24; }
        .meta { color: #888; font-size: 0.8em; margin-right: 6px; }
    </style>
</head>
<body>
    <h1>Relay Chat</h1>

    <div id="join">
        <input type="text" id="username" placeholder="Username">
        <input type="text" id="room" placeholder="Room">
        <button onclick="join()">Join</button>
    </div>

    <div id="chat">
        <div id="sidebar"></div>
        <div id="messages"></div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
        <button onclick="sendLocation()">Share location</button>
    </div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');

        function addLine(html) {
            const el = document.createElement('div');
            el.innerHTML = html;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function formatTime(createdAt) {
            return new Date(createdAt).toLocaleTimeString();
        }

        function handleEvent(event) {
            const p = event.payload;
            if (event.type === 'message') {
                const cls = p.username === 'Admin' ? 'admin' : '';
                addLine('<span class="meta">' + formatTime(p.createdAt) + '</span><strong class="' + cls + '">' +
                    p.username + ':</strong> ' + p.text);
            } else if (event.type === 'locationMessage') {
                addLine('<span class="meta">' + formatTime(p.createdAt) + '</span><strong>' + p.username +
                    ':</strong> <a href="' + p.url + '" target="_blank">My current location</a>');
            } else if (event.type === 'roomData') {
                const names = p.users.map(function(u) { return u.username; }).join(', ');
                document.getElementById('sidebar').innerHTML =
                    '<strong>' + p.room + '</strong>: ' + names;
            } else if (event.type === 'error') {
                addLine('<span class="error">' + p.error + '</span>');
            }
        }

        function send(type, payload) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ type: type, payload: payload }));
            }
        }

        function join() {
            const username = document.getElementById('username').value.trim();
            const room = document.getElementById('room').value.trim();

            ws = new WebSocket('ws://' + location.host + '/ws');

            ws.onopen = function() {
                send('join', { username: username, room: room });
                document.getElementById('join').style.display = 'none';
                document.getElementById('chat').style.display = 'block';
            };

            ws.onmessage = function(e) {
                handleEvent(JSON.parse(e.data));
            };

            ws.onclose = function() {
                addLine('<span class="admin">Connection closed</span>');
            };
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            const text = input.value.trim();
            if (text) {
                send('sendMessage', { text: text });
                input.value = '';
            }
        }

        function sendLocation() {
            if (!navigator.geolocation) {
                addLine('<span class="error">Geolocation is not supported by your browser.</span>');
                return;
            }
            navigator.geolocation.getCurrentPosition(function(position) {
                send('sendLocation', {
                    latitude: position.coords.latitude,
                    longitude: position.coords.longitude
                });
            });
        }

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
