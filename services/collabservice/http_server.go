package collabservice

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type HTTPServer struct {
	server *http.Server
	router *mux.Router
}

func NewHTTPServer(addr string) *HTTPServer {
	router := mux.NewRouter()

	// Websocket connections are long-lived, so no read/write timeouts.
	srv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		Handler:           router,
	}

	return &HTTPServer{
		server: srv,
		router: router,
	}
}

func (hs *HTTPServer) Start() {
	go func() {
		log.Printf("HTTP server starting on %s", hs.server.Addr)
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()
}

func (hs *HTTPServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := hs.server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("HTTP server stopped")
}

// Handler exposes the router, mainly for httptest.
func (hs *HTTPServer) Handler() http.Handler {
	return hs.router
}

func (hs *HTTPServer) RegisterRoutes(service *Service) {
	// WebSocket endpoints
	hs.router.HandleFunc("/ws", service.HandleWebSocket)
	hs.router.HandleFunc("/ws/activity", service.activity.HandleWebSocket)

	// REST API endpoints
	hs.router.HandleFunc("/healthz", service.HealthHandler).Methods("GET")
	hs.router.HandleFunc("/languages", service.LanguagesHandler).Methods("GET")
	hs.router.HandleFunc("/rooms/{room_id}", service.GetRoomHandler).Methods("GET")
	hs.router.HandleFunc("/rooms/{room_id}/operations", service.GetRoomOperationsHandler).Methods("GET")
}
