package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-droproom/internal/blob"
	"github.com/npezzotti/go-droproom/internal/config"
	"github.com/npezzotti/go-droproom/internal/database"
	"github.com/npezzotti/go-droproom/internal/server"
	"github.com/npezzotti/go-droproom/internal/stats"
	"github.com/teris-io/shortid"
)

type DropRoomApp struct {
	log            *log.Logger
	db             database.RoomRepository
	mux            *http.Server
	cs             *server.ChatServer
	blob           blob.Store
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
	// generateRoomId supplies ids for rooms created without a
	// client-provided one
	generateRoomId func() (string, error)
}

func NewDropRoomApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer,
	db database.RoomRepository, blobStore blob.Store, sp stats.StatsProvider, cfg *config.Config) *DropRoomApp {
	s := &DropRoomApp{
		log:            logger,
		db:             db,
		cs:             cs,
		blob:           blobStore,
		stats:          sp,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		generateRoomId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/rooms", s.createRoom)
	mux.HandleFunc("GET /api/rooms", s.getRoom)
	mux.HandleFunc("POST /api/rooms/join", s.joinRoom)
	mux.Handle("DELETE /api/rooms", s.memberAuth(s.deleteRoom))
	mux.Handle("POST /api/messages", s.memberAuth(s.postMessage))
	mux.Handle("GET /api/messages", s.memberAuth(s.getMessages))
	mux.Handle("POST /api/upload", s.memberAuth(s.uploadFile))
	mux.Handle("GET /ws", s.memberAuth(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *DropRoomApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *DropRoomApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
