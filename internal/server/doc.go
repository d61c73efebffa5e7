// Package server implements the WebSocket relay: protocol sessions, room
// fan-out, and the HTTP surface around them.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, sessions, routing, and HTTP handlers to keep the
// codebase maintainable and testable as the project grows.
package server
