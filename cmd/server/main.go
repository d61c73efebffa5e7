package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/relaychat/internal/message"
	"github.com/Tyrowin/relaychat/internal/presence"
	"github.com/Tyrowin/relaychat/internal/profanity"
	"github.com/Tyrowin/relaychat/internal/server"
)

const (
	httpShutdownTimeout = 10 * time.Second
	hubShutdownTimeout  = 5 * time.Second
)

func main() {
	log.Println("Starting relay chat server...")

	cfg := server.NewConfigFromEnv()
	server.SetConfig(cfg)

	hub := server.NewHub()
	registry := presence.NewRegistry()
	factory := message.NewFactory()
	filter := profanity.NewFilter(cfg.ProfanityWords...)
	chat := server.NewChatServer(hub, registry, factory, filter)

	mux := server.SetupRoutes(chat)
	httpServer := server.CreateServer(cfg.Port, mux)

	go hub.Run()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received signal %s; shutting down", sig)
	}

	if err := server.ShutdownServer(httpServer, httpShutdownTimeout); err != nil {
		log.Printf("HTTP shutdown did not complete cleanly: %v", err)
	}
	if err := hub.Shutdown(hubShutdownTimeout); err != nil {
		log.Printf("Hub shutdown did not complete cleanly: %v", err)
	}

	log.Println("Server stopped")
}
