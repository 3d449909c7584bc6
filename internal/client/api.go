package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Tyrowin/nexchat/internal/chat"
)

// UserHeader mirrors the header the server reads the acting user from.
const UserHeader = "X-User-ID"

// StatusError is a non-2xx reply from the REST API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Message)
}

// APIClient calls the REST API on behalf of one user.
type APIClient struct {
	baseURL string
	user    chat.UserID
	http    *http.Client
}

// NewAPIClient creates a client for the server at baseURL.
func NewAPIClient(baseURL string, user chat.UserID) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	body := io.Reader(http.NoBody)
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set(UserHeader, string(c.user))
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CreateRoom creates a room with the caller and members as participants.
func (c *APIClient) CreateRoom(ctx context.Context, name string, members []chat.UserID) (chat.Room, error) {
	var room chat.Room
	in := map[string]any{"name": name, "members": members}
	err := c.do(ctx, http.MethodPost, "/api/rooms", in, &room)
	return room, err
}

func (c *APIClient) GetRoom(ctx context.Context, room chat.RoomID) (chat.Room, error) {
	var out chat.Room
	err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(string(room)), nil, &out)
	return out, err
}

func (c *APIClient) FetchRoomMembers(ctx context.Context, room chat.RoomID) ([]chat.UserID, error) {
	var out struct {
		Members []chat.UserID `json:"members"`
	}
	err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(string(room))+"/members", nil, &out)
	return out.Members, err
}

// CreateMessage persists content in room. The reply carries the room's
// participants for fanout.
func (c *APIClient) CreateMessage(ctx context.Context, room chat.RoomID, content string) (chat.Message, error) {
	var msg chat.Message
	in := map[string]any{"room_id": room, "content": content}
	err := c.do(ctx, http.MethodPost, "/api/message", in, &msg)
	return msg, err
}

func (c *APIClient) FetchMessages(ctx context.Context, room chat.RoomID) ([]chat.Message, error) {
	var msgs []chat.Message
	err := c.do(ctx, http.MethodGet, "/api/message/"+url.PathEscape(string(room)), nil, &msgs)
	return msgs, err
}

func (c *APIClient) SaveNotification(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPost, "/api/notification", map[string]string{"message_id": messageID}, nil)
}

func (c *APIClient) ListNotifications(ctx context.Context) ([]chat.Notification, error) {
	var out []chat.Notification
	err := c.do(ctx, http.MethodGet, "/api/notification", nil, &out)
	return out, err
}

func (c *APIClient) AckNotification(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/api/notification/"+url.PathEscape(messageID), nil, nil)
}
