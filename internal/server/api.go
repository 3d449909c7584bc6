package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Tyrowin/nexchat/internal/chat"
	"github.com/Tyrowin/nexchat/internal/store"
)

// UserHeader carries the acting user. Authentication happens upstream.
const UserHeader = "X-User-ID"

const maxBodyBytes = 64 * 1024

type createRoomRequest struct {
	Name    string        `json:"name"`
	Members []chat.UserID `json:"members"`
}

type createMessageRequest struct {
	RoomID  chat.RoomID `json:"room_id"`
	Content string      `json:"content"`
}

type saveNotificationRequest struct {
	MessageID string `json:"message_id"`
}

type membersResponse struct {
	RoomID  chat.RoomID   `json:"room_id"`
	Members []chat.UserID `json:"members"`
}

// userFrom returns the validated acting user or writes a 401.
func (s *Server) userFrom(w http.ResponseWriter, r *http.Request) (chat.UserID, bool) {
	user := chat.UserID(r.Header.Get(UserHeader))
	if err := chat.ValidateUserID(user); err != nil {
		s.writeError(w, http.StatusUnauthorized, UserHeader+": "+err.Error())
		return "", false
	}
	return user, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// storeError maps collaborator errors onto HTTP statuses.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrNotMember):
		s.writeError(w, http.StatusForbidden, err.Error())
	case isValidationError(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("store call failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		chat.ErrMessageEmpty,
		chat.ErrMessageTooLong,
		chat.ErrMessageInvalid,
		chat.ErrRoomNameEmpty,
		chat.ErrRoomNameTooLong,
		chat.ErrUserIDEmpty,
		chat.ErrUserIDTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// CreateRoomHandler creates a room. The acting user is always a member.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFrom(w, r)
	if !ok {
		return
	}
	var req createRoomRequest
	if !s.decode(w, r, &req) {
		return
	}

	members := append([]chat.UserID{user}, req.Members...)
	room, err := s.store.CreateRoom(r.Context(), req.Name, members)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.logger.Info().Str("room", string(room.ID)).Int("members", len(room.Members)).Msg("room created")
	s.writeJSON(w, http.StatusCreated, room)
}

func (s *Server) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	room, err := s.store.GetRoom(r.Context(), chat.RoomID(r.PathValue("roomID")))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, room)
}

func (s *Server) RoomMembersHandler(w http.ResponseWriter, r *http.Request) {
	id := chat.RoomID(r.PathValue("roomID"))
	members, err := s.store.FetchRoomMembers(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, membersResponse{RoomID: id, Members: members})
}

// CreateMessageHandler persists a message and returns it with the room's
// participants attached, ready to be pushed over the live channel.
func (s *Server) CreateMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFrom(w, r)
	if !ok {
		return
	}
	var req createMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RoomID == "" {
		s.writeError(w, http.StatusBadRequest, "room_id is required")
		return
	}

	msg, err := s.store.CreateMessage(r.Context(), req.RoomID, user, req.Content)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) FetchMessagesHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.FetchMessages(r.Context(), chat.RoomID(r.PathValue("roomID")))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) SaveNotificationHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFrom(w, r)
	if !ok {
		return
	}
	var req saveNotificationRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.MessageID == "" {
		s.writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}

	n, err := s.store.SaveNotification(r.Context(), user, req.MessageID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, n)
}

func (s *Server) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFrom(w, r)
	if !ok {
		return
	}
	list, err := s.store.ListNotifications(r.Context(), user)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) AckNotificationHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFrom(w, r)
	if !ok {
		return
	}
	if err := s.store.AckNotification(r.Context(), user, r.PathValue("messageID")); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
