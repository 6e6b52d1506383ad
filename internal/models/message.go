package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Message struct {
	ID             string     `gorm:"primaryKey;type:char(36)" json:"id"`
	SenderID       string     `gorm:"type:char(36);not null;index" json:"sender_id"`
	ConversationID string     `gorm:"type:char(36);not null;index:idx_messages_conversation_sent" json:"conversation_id"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	SentAt         time.Time  `gorm:"not null;index:idx_messages_conversation_sent" json:"sent_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `gorm:"index" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	return nil
}

// MessageRead is a read receipt; one row per (message, user).
type MessageRead struct {
	ID        string    `gorm:"primaryKey;type:char(36)" json:"id"`
	MessageID string    `gorm:"type:char(36);not null;uniqueIndex:idx_message_reads_message_user" json:"message_id"`
	UserID    string    `gorm:"type:char(36);not null;uniqueIndex:idx_message_reads_message_user" json:"user_id"`
	ReadAt    time.Time `gorm:"not null" json:"read_at"`
}

func (MessageRead) TableName() string {
	return "message_reads"
}

func (r *MessageRead) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
