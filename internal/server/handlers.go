// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks and hub statistics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/nexchat/internal/chat"
)

// Persistence is the request/response collaborator behind the REST API.
// *store.Store implements it.
type Persistence interface {
	CreateRoom(ctx context.Context, name string, members []chat.UserID) (chat.Room, error)
	GetRoom(ctx context.Context, id chat.RoomID) (chat.Room, error)
	FetchRoomMembers(ctx context.Context, id chat.RoomID) ([]chat.UserID, error)
	CreateMessage(ctx context.Context, roomID chat.RoomID, sender chat.UserID, content string) (chat.Message, error)
	FetchMessages(ctx context.Context, roomID chat.RoomID) ([]chat.Message, error)
	SaveNotification(ctx context.Context, user chat.UserID, messageID string) (chat.Notification, error)
	ListNotifications(ctx context.Context, user chat.UserID) ([]chat.Notification, error)
	AckNotification(ctx context.Context, user chat.UserID, messageID string) error
	Ping(ctx context.Context) error
}

// Server bundles the HTTP surface: the live channel endpoint backed by the
// hub and the REST API backed by the persistence collaborator.
type Server struct {
	cfg      *Config
	hub      *Hub
	store    Persistence
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New creates a Server. hub must be running before requests arrive.
func New(cfg *Config, hub *Hub, store Persistence, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "http").Logger()
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)
	return &Server{
		cfg:   cfg,
		hub:   hub,
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		logger: logger,
	}
}

// WebSocketHandler upgrades the request and hands the connection to the hub,
// which starts its read and write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	c := NewConnection(conn, s.hub, r.RemoteAddr)
	if !s.hub.Register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

// HealthHandler reports whether the server and its store are reachable.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("health check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NexChat store is unavailable"))
		return
	}
	_, _ = w.Write([]byte("NexChat server is running!"))
}

// StatsHandler returns live hub counts.
func (s *Server) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.hub.Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("error writing response")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
