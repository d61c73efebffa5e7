// Package server wires HTTP handlers into a ServeMux for the relay
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, WebSocket endpoint, and the chat page.
func SetupRoutes(cs *ChatServer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", cs.WebSocketHandler)
	mux.HandleFunc("/chat", cs.ChatPageHandler)
	return mux
}
