package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Conversation struct {
	ID                 string     `gorm:"primaryKey;type:char(36)" json:"id"`
	ConversationTypeID string     `gorm:"type:char(36);not null;index" json:"conversation_type_id"`
	CreatedAt          time.Time  `json:"created_at"`
	DeletedAt          *time.Time `gorm:"index" json:"deleted_at,omitempty"`

	ConversationType *MasterConversationType `gorm:"foreignKey:ConversationTypeID" json:"conversation_type,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ConversationParticipant is an active member while LeftAt is nil.
type ConversationParticipant struct {
	ID             string     `gorm:"primaryKey;type:char(36)" json:"id"`
	ConversationID string     `gorm:"type:char(36);not null;index:idx_participants_conversation_left" json:"conversation_id"`
	UserID         string     `gorm:"type:char(36);not null;index:idx_participants_user_left" json:"user_id"`
	JoinedAt       time.Time  `gorm:"not null" json:"joined_at"`
	LeftAt         *time.Time `gorm:"index:idx_participants_conversation_left;index:idx_participants_user_left" json:"left_at"`

	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"-"`
}

func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

func (p *ConversationParticipant) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	return nil
}

func (p *ConversationParticipant) IsActive() bool { return p.LeftAt == nil }
