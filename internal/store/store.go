// Package store is the persistence collaborator of the chat core: rooms with
// their participants, messages and per-user notifications, kept in SQLite
// through GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Tyrowin/nexchat/internal/chat"
)

var (
	// ErrNotFound is returned when a room or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotMember is returned when a user acts on a room they do not belong to.
	ErrNotMember = errors.New("user is not a member of the room")
)

// Store provides access to chat storage.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the SQLite database at path and runs migrations.
// Use ":memory:" for a throwaway database.
func Open(path string, debug bool) (*Store, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite serializes writers anyway, and an in-memory database only
	// exists on the connection that created it.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	s := New(db)
	if err := s.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing GORM handle. Call Migrate before first use.
func New(db *gorm.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&roomRecord{}, &memberRecord{}, &messageRecord{}, &notificationRecord{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// CreateRoom stores a room and its participants. Duplicate and blank member
// ids are rejected or collapsed.
func (s *Store) CreateRoom(ctx context.Context, name string, members []chat.UserID) (chat.Room, error) {
	name = strings.TrimSpace(name)
	if err := chat.ValidateRoomName(name); err != nil {
		return chat.Room{}, err
	}

	unique := make([]chat.UserID, 0, len(members))
	seen := make(map[chat.UserID]struct{}, len(members))
	for _, m := range members {
		if err := chat.ValidateUserID(m); err != nil {
			return chat.Room{}, err
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		unique = append(unique, m)
	}
	if len(unique) == 0 {
		return chat.Room{}, chat.ErrUserIDEmpty
	}

	now := s.now()
	room := roomRecord{ID: uuid.New().String(), Name: name, CreatedAt: now}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		rows := make([]memberRecord, len(unique))
		for i, m := range unique {
			rows[i] = memberRecord{RoomID: room.ID, UserID: string(m), JoinedAt: now}
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return chat.Room{}, fmt.Errorf("failed to create room: %w", err)
	}

	return chat.Room{
		ID:        chat.RoomID(room.ID),
		Name:      room.Name,
		Members:   unique,
		CreatedAt: room.CreatedAt,
	}, nil
}

// GetRoom returns a room with its participants.
func (s *Store) GetRoom(ctx context.Context, id chat.RoomID) (chat.Room, error) {
	var room roomRecord
	if err := s.db.WithContext(ctx).First(&room, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Room{}, ErrNotFound
		}
		return chat.Room{}, fmt.Errorf("failed to find room: %w", err)
	}

	members, err := s.members(ctx, id)
	if err != nil {
		return chat.Room{}, err
	}

	return chat.Room{
		ID:        chat.RoomID(room.ID),
		Name:      room.Name,
		Members:   members,
		CreatedAt: room.CreatedAt,
	}, nil
}

// FetchRoomMembers returns the persisted participant list of a room.
func (s *Store) FetchRoomMembers(ctx context.Context, id chat.RoomID) ([]chat.UserID, error) {
	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	return room.Members, nil
}

func (s *Store) members(ctx context.Context, id chat.RoomID) ([]chat.UserID, error) {
	var rows []memberRecord
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", string(id)).
		Order("joined_at ASC, user_id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find members: %w", err)
	}
	out := make([]chat.UserID, len(rows))
	for i, r := range rows {
		out[i] = chat.UserID(r.UserID)
	}
	return out, nil
}

// CreateMessage persists a message from sender and returns it with the room's
// participant list attached for fanout.
func (s *Store) CreateMessage(ctx context.Context, roomID chat.RoomID, sender chat.UserID, content string) (chat.Message, error) {
	if err := chat.ValidateContent(content); err != nil {
		return chat.Message{}, err
	}

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return chat.Message{}, err
	}
	if !room.HasMember(sender) {
		return chat.Message{}, ErrNotMember
	}

	rec := messageRecord{
		ID:        uuid.New().String(),
		RoomID:    string(roomID),
		SenderID:  string(sender),
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return chat.Message{}, fmt.Errorf("failed to create message: %w", err)
	}

	msg := rec.toMessage()
	msg.Room = &room
	return msg, nil
}

// FetchMessages returns a room's history in creation order.
func (s *Store) FetchMessages(ctx context.Context, roomID chat.RoomID) ([]chat.Message, error) {
	if err := s.roomExists(ctx, roomID); err != nil {
		return nil, err
	}

	var rows []messageRecord
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", string(roomID)).
		Order("created_at ASC, rowid ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}

	out := make([]chat.Message, len(rows))
	for i, r := range rows {
		out[i] = r.toMessage()
	}
	return out, nil
}

func (s *Store) roomExists(ctx context.Context, id chat.RoomID) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&roomRecord{}).Where("id = ?", string(id)).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to find room: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveNotification records that user has an unread message. Saving the same
// message twice keeps the first entry.
func (s *Store) SaveNotification(ctx context.Context, user chat.UserID, messageID string) (chat.Notification, error) {
	var msg messageRecord
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Notification{}, ErrNotFound
		}
		return chat.Notification{}, fmt.Errorf("failed to find message: %w", err)
	}

	room, err := s.GetRoom(ctx, chat.RoomID(msg.RoomID))
	if err != nil {
		return chat.Notification{}, err
	}
	if !room.HasMember(user) {
		return chat.Notification{}, ErrNotMember
	}

	rec := notificationRecord{
		UserID:    string(user),
		MessageID: messageID,
		RoomID:    msg.RoomID,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error; err != nil {
		return chat.Notification{}, fmt.Errorf("failed to save notification: %w", err)
	}

	var stored notificationRecord
	if err := s.db.WithContext(ctx).
		First(&stored, "user_id = ? AND message_id = ?", string(user), messageID).Error; err != nil {
		return chat.Notification{}, fmt.Errorf("failed to load notification: %w", err)
	}
	return stored.toNotification(), nil
}

// ListNotifications returns the user's unread entries, newest first.
func (s *Store) ListNotifications(ctx context.Context, user chat.UserID) ([]chat.Notification, error) {
	var rows []notificationRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", string(user)).
		Order("created_at DESC, rowid DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find notifications: %w", err)
	}

	out := make([]chat.Notification, len(rows))
	for i, r := range rows {
		out[i] = r.toNotification()
	}
	return out, nil
}

// AckNotification removes one entry. Acknowledging an absent entry is a no-op.
func (s *Store) AckNotification(ctx context.Context, user chat.UserID, messageID string) error {
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND message_id = ?", string(user), messageID).
		Delete(&notificationRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}
