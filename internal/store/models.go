package store

import (
	"time"

	"github.com/Tyrowin/nexchat/internal/chat"
)

type roomRecord struct {
	ID        string    `gorm:"primarykey;size:36"`
	Name      string    `gorm:"size:100;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (roomRecord) TableName() string {
	return "rooms"
}

type memberRecord struct {
	RoomID   string    `gorm:"primarykey;size:36"`
	UserID   string    `gorm:"primarykey;size:64"`
	JoinedAt time.Time `gorm:"not null"`
}

func (memberRecord) TableName() string {
	return "room_members"
}

type messageRecord struct {
	ID        string    `gorm:"primarykey;size:36"`
	RoomID    string    `gorm:"size:36;not null;index:idx_messages_room_created"`
	SenderID  string    `gorm:"size:64;not null"`
	Content   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_room_created"`
}

func (messageRecord) TableName() string {
	return "messages"
}

func (m messageRecord) toMessage() chat.Message {
	return chat.Message{
		ID:        m.ID,
		RoomID:    chat.RoomID(m.RoomID),
		SenderID:  chat.UserID(m.SenderID),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

type notificationRecord struct {
	UserID    string    `gorm:"primarykey;size:64"`
	MessageID string    `gorm:"primarykey;size:36"`
	RoomID    string    `gorm:"size:36;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (notificationRecord) TableName() string {
	return "notifications"
}

func (n notificationRecord) toNotification() chat.Notification {
	return chat.Notification{
		UserID:    chat.UserID(n.UserID),
		MessageID: n.MessageID,
		RoomID:    chat.RoomID(n.RoomID),
		CreatedAt: n.CreatedAt,
	}
}
