// Package server wires HTTP handlers into a ServeMux for the NexChat
// application via routing helpers.
package server

import "net/http"

// Routes returns a ServeMux with the live channel endpoint, the REST API and
// the operational endpoints.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.WebSocketHandler)

	mux.HandleFunc("GET /{$}", s.HealthHandler)
	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.HandleFunc("GET /stats", s.StatsHandler)

	mux.HandleFunc("POST /api/rooms", s.CreateRoomHandler)
	mux.HandleFunc("GET /api/rooms/{roomID}", s.GetRoomHandler)
	mux.HandleFunc("GET /api/rooms/{roomID}/members", s.RoomMembersHandler)

	mux.HandleFunc("POST /api/message", s.CreateMessageHandler)
	mux.HandleFunc("GET /api/message/{roomID}", s.FetchMessagesHandler)

	mux.HandleFunc("POST /api/notification", s.SaveNotificationHandler)
	mux.HandleFunc("GET /api/notification", s.ListNotificationsHandler)
	mux.HandleFunc("DELETE /api/notification/{messageID}", s.AckNotificationHandler)
	return mux
}
