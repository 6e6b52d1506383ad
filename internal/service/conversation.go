package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatio/internal/domain"
	"chatio/internal/models"
	"chatio/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Membership names one user joining one conversation.
type Membership struct {
	ConversationID string
	UserID         string
}

// ActiveConversation is a conversation together with all of its participant rows.
type ActiveConversation struct {
	Conversation *models.Conversation             `json:"conversation"`
	Participants []models.ConversationParticipant `json:"participants"`
}

// ConversationManager creates conversations, enrolls participants and retires them.
type ConversationManager struct {
	repo repository.ChatStore
	log  *zap.Logger
	now  func() time.Time
}

func NewConversationManager(repo repository.ChatStore, log *zap.Logger) *ConversationManager {
	return &ConversationManager{repo: repo, log: log.Named("conversations"), now: time.Now}
}

// withStore returns a copy bound to tx.
func (m *ConversationManager) withStore(tx repository.ChatStore) *ConversationManager {
	c := *m
	c.repo = tx
	return &c
}

// CreateConversation creates an empty conversation of the named type.
func (m *ConversationManager) CreateConversation(ctx context.Context, typeName string) (*models.Conversation, error) {
	ct, err := m.repo.FindConversationTypeByName(ctx, typeName)
	if errors.Is(err, repository.ErrNotFound) {
		m.log.Error("conversation type missing from master data", zap.String("type", typeName))
		return nil, fmt.Errorf("%w: %s", ErrConversationTypeMissing, typeName)
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation type %s: %w", typeName, err)
	}
	conv := &models.Conversation{ConversationTypeID: ct.ID, CreatedAt: m.now().UTC()}
	if err := m.repo.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	conv.ConversationType = ct
	return conv, nil
}

// JoinConversation bulk-inserts active memberships.
func (m *ConversationManager) JoinConversation(ctx context.Context, joins []Membership) ([]models.ConversationParticipant, error) {
	now := m.now().UTC()
	ps := make([]models.ConversationParticipant, 0, len(joins))
	for _, j := range joins {
		ps = append(ps, models.ConversationParticipant{
			ConversationID: j.ConversationID,
			UserID:         j.UserID,
			JoinedAt:       now,
		})
	}
	if err := m.repo.BulkInsertParticipants(ctx, ps); err != nil {
		return nil, fmt.Errorf("insert participants: %w", err)
	}
	return ps, nil
}

// CreateStrangerConversation creates a STRANGER conversation and enrolls userIDs
// in one transaction.
func (m *ConversationManager) CreateStrangerConversation(ctx context.Context, userIDs ...string) (*ActiveConversation, error) {
	var out ActiveConversation
	err := m.repo.Transaction(ctx, func(tx repository.ChatStore) error {
		mt := m.withStore(tx)
		conv, err := mt.CreateConversation(ctx, domain.ConversationTypeStranger)
		if err != nil {
			return err
		}
		joins := make([]Membership, 0, len(userIDs))
		for _, id := range userIDs {
			joins = append(joins, Membership{ConversationID: conv.ID, UserID: id})
		}
		ps, err := mt.JoinConversation(ctx, joins)
		if err != nil {
			return err
		}
		out = ActiveConversation{Conversation: conv, Participants: ps}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindActiveStrangerConversation returns ErrConversationNotFound when userID has
// no active STRANGER membership.
func (m *ConversationManager) FindActiveStrangerConversation(ctx context.Context, userID string) (*ActiveConversation, error) {
	membership, err := m.repo.FindActiveStrangerMembership(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find stranger membership: %w", err)
	}

	var (
		out ActiveConversation
		g   errgroup.Group
	)
	g.Go(func() error {
		conv, err := m.repo.GetConversation(ctx, membership.ConversationID)
		out.Conversation = conv
		return err
	})
	g.Go(func() error {
		ps, err := m.repo.FindParticipants(ctx, repository.ParticipantFilter{ConversationID: membership.ConversationID})
		out.Participants = ps
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("load stranger conversation: %w", err)
	}
	return &out, nil
}

func (m *ConversationManager) HasActiveStranger(ctx context.Context, userID string) (bool, error) {
	_, err := m.repo.FindActiveStrangerMembership(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Leave stamps left_at on the active participants of conversationID. An empty
// userID retires every active participant. The updated rows are returned.
func (m *ConversationManager) Leave(ctx context.Context, conversationID, userID string) ([]models.ConversationParticipant, error) {
	updated, err := m.repo.UpdateParticipantsLeftAt(ctx, repository.ParticipantFilter{
		ConversationID: conversationID,
		UserID:         userID,
	}, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("leave conversation %s: %w", conversationID, err)
	}
	return updated, nil
}

func (m *ConversationManager) ListConversations(ctx context.Context, f repository.ConversationFilter) ([]models.Conversation, error) {
	return m.repo.ListConversations(ctx, f)
}

// RequireParticipant checks that conversationID exists and userID belongs to it.
// With activeOnly, a member who already left is rejected too.
func (m *ConversationManager) RequireParticipant(ctx context.Context, conversationID, userID string, activeOnly bool) (*models.Conversation, error) {
	conv, err := m.repo.GetConversation(ctx, conversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	ps, err := m.repo.FindParticipants(ctx, repository.ParticipantFilter{
		ConversationID: conversationID,
		UserID:         userID,
		ActiveOnly:     activeOnly,
	})
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// ActiveParticipants lists the members of conversationID that have not left.
func (m *ConversationManager) ActiveParticipants(ctx context.Context, conversationID string) ([]models.ConversationParticipant, error) {
	return m.repo.FindParticipants(ctx, repository.ParticipantFilter{ConversationID: conversationID, ActiveOnly: true})
}
