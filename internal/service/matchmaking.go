package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatio/config"
	"chatio/internal/cache"
	"chatio/internal/domain"
	"chatio/internal/models"

	"go.uber.org/zap"
)

const maxMatchAttempts = 2

// MatchResult is the outcome of RequestMatch. Left carries the stranger
// conversation the requester was pulled out of first, if any.
type MatchResult struct {
	Status       string                           `json:"status"`
	Conversation *models.Conversation             `json:"conversation,omitempty"`
	Participants []models.ConversationParticipant `json:"participants,omitempty"`
	Left         *LeaveResult                     `json:"-"`
}

// LeaveResult lists the rows stamped by a leave and the members still active.
type LeaveResult struct {
	ConversationID string                           `json:"conversation_id"`
	Updated        []models.ConversationParticipant `json:"updated"`
	Remaining      []models.ConversationParticipant `json:"remaining"`
}

// Matchmaker pairs waiting users into STRANGER conversations, oldest waiter first.
type Matchmaker struct {
	conversations *ConversationManager
	sessions      *SessionTracker
	queue         *MatchQueue
	locks         *userLocks
	log           *zap.Logger
}

func NewMatchmaker(store cache.Store, conversations *ConversationManager, sessions *SessionTracker, cfg config.ChatConfig, log *zap.Logger) *Matchmaker {
	return &Matchmaker{
		conversations: conversations,
		sessions:      sessions,
		queue:         NewMatchQueue(store),
		locks:         &userLocks{store: store, ttl: cfg.MatchLockTTL, wait: cfg.MatchLockWait, poll: 20 * time.Millisecond},
		log:           log.Named("matchmaker"),
	}
}

// RequestMatch leaves the user's active stranger conversation, then pairs the
// user with the oldest other waiter or queues them.
func (m *Matchmaker) RequestMatch(ctx context.Context, userID string) (*MatchResult, error) {
	release, err := m.locks.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	left, err := m.LeaveActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := &MatchResult{Left: left}

	for attempt := 1; attempt <= maxMatchAttempts; attempt++ {
		active, err := m.pair(ctx, userID)
		if errors.Is(err, ErrConcurrencyConflict) {
			m.log.Info("match attempt lost a race", zap.String("user_id", userID), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		if active == nil {
			break
		}
		res.Status = domain.MatchStatusMatched
		res.Conversation = active.Conversation
		res.Participants = active.Participants
		return res, nil
	}

	if _, err := m.queue.Enqueue(ctx, userID); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", userID, err)
	}
	res.Status = domain.MatchStatusWaiting
	return res, nil
}

// pair claims the oldest waiter and creates the conversation. It returns nil
// when nobody else is waiting.
func (m *Matchmaker) pair(ctx context.Context, userID string) (*ActiveConversation, error) {
	peerID, ok, err := m.queue.PopPeer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("pop queue: %w", err)
	}
	if !ok {
		return nil, nil
	}
	log := m.log.With(zap.String("user_id", userID), zap.String("peer_id", peerID))

	releasePeer, err := m.locks.acquire(ctx, peerID)
	if err != nil {
		m.requeue(ctx, log, peerID)
		return nil, err
	}
	defer releasePeer()

	// The peer may have disconnected or been matched since it was queued.
	p, err := m.sessions.LookupPresence(ctx, peerID)
	if err != nil {
		m.requeue(ctx, log, peerID)
		return nil, err
	}
	if p == nil {
		log.Info("dropped offline peer from queue")
		return nil, fmt.Errorf("peer %s offline: %w", peerID, ErrConcurrencyConflict)
	}
	busy, err := m.conversations.HasActiveStranger(ctx, peerID)
	if err != nil {
		m.requeue(ctx, log, peerID)
		return nil, err
	}
	if busy {
		log.Info("dropped already matched peer from queue")
		_, _ = m.queue.Remove(ctx, peerID)
		return nil, fmt.Errorf("peer %s already matched: %w", peerID, ErrConcurrencyConflict)
	}

	active, err := m.conversations.CreateStrangerConversation(ctx, userID, peerID)
	if err != nil {
		m.requeue(ctx, log, peerID)
		return nil, err
	}
	// the peer may have queued itself again while it was being claimed
	if _, err := m.queue.Remove(ctx, peerID); err != nil {
		log.Error("remove matched peer from queue", zap.Error(err))
	}
	log.Info("matched", zap.String("conversation_id", active.Conversation.ID))
	return active, nil
}

func (m *Matchmaker) requeue(ctx context.Context, log *zap.Logger, peerID string) {
	if _, err := m.queue.Enqueue(ctx, peerID); err != nil {
		log.Error("requeue peer", zap.Error(err))
	}
}

// SkipOrLeave stamps left_at for userID in conversationID, or for every active
// member when userID is empty.
func (m *Matchmaker) SkipOrLeave(ctx context.Context, conversationID, userID string) (*LeaveResult, error) {
	updated, err := m.conversations.Leave(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	remaining, err := m.conversations.ActiveParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &LeaveResult{ConversationID: conversationID, Updated: updated, Remaining: remaining}, nil
}

// LeaveActive retires the user from their active stranger conversation. It
// returns nil when there is none.
func (m *Matchmaker) LeaveActive(ctx context.Context, userID string) (*LeaveResult, error) {
	active, err := m.conversations.FindActiveStrangerConversation(ctx, userID)
	if errors.Is(err, ErrConversationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.SkipOrLeave(ctx, active.Conversation.ID, userID)
}

// Waiting reports whether userID is queued.
func (m *Matchmaker) Waiting(ctx context.Context, userID string) (bool, error) {
	return m.queue.Contains(ctx, userID)
}
