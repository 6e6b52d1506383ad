package repository

import (
	"context"
	"errors"
	"time"

	"chatio/internal/models"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("repository: record not found")

// ParticipantFilter narrows participant queries. Empty fields are ignored.
type ParticipantFilter struct {
	ConversationID   string
	UserID           string
	ConversationType string
	ActiveOnly       bool
}

// ConversationFilter selects the conversations a user belongs to.
// IsLeft nil means both active and left memberships.
type ConversationFilter struct {
	UserID string
	Type   string
	IsLeft *bool
}

type MessageFilter struct {
	ConversationID string
	MessageID      string
	MessageIDs     []string
	SenderID       string
}

type Page struct {
	Offset int
	Limit  int
}

// ChatStore is the transactional conversation repository. Transaction hands fn a
// ChatStore bound to the open transaction; fn must use it for every call that
// belongs to the unit of work.
type ChatStore interface {
	Transaction(ctx context.Context, fn func(tx ChatStore) error) error

	FindConversationTypeByName(ctx context.Context, name string) (*models.MasterConversationType, error)
	CreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, f ConversationFilter) ([]models.Conversation, error)

	BulkInsertParticipants(ctx context.Context, ps []models.ConversationParticipant) error
	FindParticipants(ctx context.Context, f ParticipantFilter) ([]models.ConversationParticipant, error)
	UpdateParticipantsLeftAt(ctx context.Context, f ParticipantFilter, at time.Time) ([]models.ConversationParticipant, error)
	FindActiveStrangerMembership(ctx context.Context, userID string) (*models.ConversationParticipant, error)

	CreateMessage(ctx context.Context, m *models.Message) error
	FindMessages(ctx context.Context, f MessageFilter, p Page) ([]models.Message, error)
	MarkMessagesRead(ctx context.Context, userID string, messageIDs []string, at time.Time) (int64, error)
}

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	FindRoleByName(ctx context.Context, name string) (*models.MasterUserRole, error)
	FindGenderByName(ctx context.Context, name string) (*models.MasterUserGender, error)
}
