package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"chatio/config"
	"chatio/internal/domain"
	"chatio/internal/models"
	"chatio/internal/repository"

	"go.uber.org/zap"
)

// Pusher delivers an event to one live connection without waiting for it.
type Pusher interface {
	Emit(connectionID, event string, payload any) error
}

type SendMessageInput struct {
	SenderID       string
	ConversationID string
	Content        string
}

// GetMessagesInput pages through a conversation, newest first. SenderID narrows
// to one author. ViewerID, when set, must be a member of the conversation.
type GetMessagesInput struct {
	ConversationID string
	MessageID      string
	SenderID       string
	ViewerID       string
	Offset         int
	Limit          *int
}

// MessagesPayload is pushed to recipients after a send.
type MessagesPayload struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []models.Message `json:"messages"`
}

// Dispatcher persists messages and fans them out to the online members of the
// conversation.
type Dispatcher struct {
	repo          repository.ChatStore
	conversations *ConversationManager
	sessions      *SessionTracker
	pusher        Pusher
	pageSize      int
	log           *zap.Logger
	now           func() time.Time
}

func NewDispatcher(repo repository.ChatStore, conversations *ConversationManager, sessions *SessionTracker, pusher Pusher, cfg config.ChatConfig, log *zap.Logger) *Dispatcher {
	pageSize := cfg.HistoryPageSize
	if pageSize <= 0 || pageSize > domain.MaxPageSize {
		pageSize = domain.MaxPageSize
	}
	return &Dispatcher{
		repo:          repo,
		conversations: conversations,
		sessions:      sessions,
		pusher:        pusher,
		pageSize:      pageSize,
		log:           log.Named("dispatcher"),
		now:           time.Now,
	}
}

// SendMessage stores the message and pushes the latest page of the conversation
// to every other online member. Push failures are logged and do not fail the send.
func (d *Dispatcher) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: content is empty", ErrValidation)
	}
	if utf8.RuneCountInString(in.Content) > domain.MaxMessageLength {
		return nil, fmt.Errorf("%w: content longer than %d characters", ErrValidation, domain.MaxMessageLength)
	}
	if _, err := d.conversations.RequireParticipant(ctx, in.ConversationID, in.SenderID, true); err != nil {
		return nil, err
	}

	msg := &models.Message{
		SenderID:       in.SenderID,
		ConversationID: in.ConversationID,
		Content:        in.Content,
		SentAt:         d.now().UTC(),
	}
	if err := d.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	d.fanOut(ctx, msg)
	return msg, nil
}

func (d *Dispatcher) fanOut(ctx context.Context, msg *models.Message) {
	log := d.log.With(zap.String("conversation_id", msg.ConversationID), zap.String("message_id", msg.ID))

	participants, err := d.conversations.ActiveParticipants(ctx, msg.ConversationID)
	if err != nil {
		log.Error("load recipients", zap.Error(err))
		return
	}
	var recipients []string
	for _, p := range participants {
		if p.UserID != msg.SenderID {
			recipients = append(recipients, p.UserID)
		}
	}
	if len(recipients) == 0 {
		return
	}

	msgs, err := d.repo.FindMessages(ctx, repository.MessageFilter{ConversationID: msg.ConversationID}, repository.Page{Limit: d.pageSize})
	if err != nil {
		log.Error("load messages for push", zap.Error(err))
		return
	}
	payload := MessagesPayload{ConversationID: msg.ConversationID, Messages: msgs}

	for _, userID := range recipients {
		p, err := d.sessions.LookupPresence(ctx, userID)
		if err != nil {
			log.Warn("lookup recipient presence", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if p == nil {
			continue
		}
		if err := d.pusher.Emit(p.ConnectionID, domain.EventReceiveMessages, payload); err != nil {
			log.Warn("push message", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// GetMessages returns messages newest first. Offset and Limit must lie in
// [0, MaxPageSize]; a nil Limit uses the configured page size.
func (d *Dispatcher) GetMessages(ctx context.Context, in GetMessagesInput) ([]models.Message, error) {
	if in.Offset < 0 || in.Offset > domain.MaxPageSize {
		return nil, fmt.Errorf("%w: offset must be between 0 and %d", ErrValidation, domain.MaxPageSize)
	}
	limit := d.pageSize
	if in.Limit != nil {
		limit = *in.Limit
	}
	if limit < 0 || limit > domain.MaxPageSize {
		return nil, fmt.Errorf("%w: limit must be between 0 and %d", ErrValidation, domain.MaxPageSize)
	}
	if in.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrValidation)
	}
	if in.ViewerID != "" {
		if _, err := d.conversations.RequireParticipant(ctx, in.ConversationID, in.ViewerID, false); err != nil {
			return nil, err
		}
	}
	if limit == 0 {
		return []models.Message{}, nil
	}

	msgs, err := d.repo.FindMessages(ctx, repository.MessageFilter{
		ConversationID: in.ConversationID,
		MessageID:      in.MessageID,
		SenderID:       in.SenderID,
	}, repository.Page{Offset: in.Offset, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	return msgs, nil
}

// MarkRead records read receipts for messages of conversationID that userID did
// not send. Unknown ids are ignored.
func (d *Dispatcher) MarkRead(ctx context.Context, userID, conversationID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 || len(messageIDs) > domain.MaxReadBatch {
		return 0, fmt.Errorf("%w: between 1 and %d message ids required", ErrValidation, domain.MaxReadBatch)
	}
	if _, err := d.conversations.RequireParticipant(ctx, conversationID, userID, false); err != nil {
		return 0, err
	}
	msgs, err := d.repo.FindMessages(ctx, repository.MessageFilter{
		ConversationID: conversationID,
		MessageIDs:     messageIDs,
	}, repository.Page{Limit: len(messageIDs)})
	if err != nil {
		return 0, fmt.Errorf("find messages: %w", err)
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID != userID {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return d.repo.MarkMessagesRead(ctx, userID, ids, d.now().UTC())
}
