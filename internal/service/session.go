package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"chatio/config"
	"chatio/internal/cache"
	"chatio/internal/domain"

	"go.uber.org/zap"
)

// Session is the per-connection record kept by the tracker.
type Session struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// Presence is what the shared store keeps for an online user.
type Presence struct {
	ConnectionID string `json:"connection_id"`
	Username     string `json:"username"`
}

// SessionTracker maps users to their live connection. Presence lives in the
// shared store; session records are local to this server instance.
type SessionTracker struct {
	store cache.Store
	queue *MatchQueue
	locks *userLocks
	log   *zap.Logger
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionTracker(store cache.Store, cfg config.ChatConfig, log *zap.Logger) *SessionTracker {
	return &SessionTracker{
		store:    store,
		queue:    NewMatchQueue(store),
		locks:    &userLocks{store: store, ttl: cfg.MatchLockTTL, wait: cfg.MatchLockWait, poll: 20 * time.Millisecond},
		log:      log.Named("sessions"),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Connect records the session for connectionID and publishes the user's presence.
// A previous connection of the same user stops receiving pushes.
func (t *SessionTracker) Connect(ctx context.Context, connectionID, userID, username string) (*Session, error) {
	s := &Session{
		ConnectionID: connectionID,
		UserID:       userID,
		Username:     username,
		ConnectedAt:  t.now().UTC(),
	}
	if err := t.RegisterPresence(ctx, userID, connectionID, username); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.sessions[connectionID] = s
	t.mu.Unlock()
	t.log.Debug("connected", zap.String("user_id", userID), zap.String("connection_id", connectionID))
	return s, nil
}

// Disconnect drops the session for connectionID. When the connection is still the
// user's current one, the queue entry and then the presence entry are removed and
// current reports true. Cleanup failures are logged, never returned.
func (t *SessionTracker) Disconnect(ctx context.Context, connectionID string) (s *Session, current bool) {
	t.mu.Lock()
	s = t.sessions[connectionID]
	delete(t.sessions, connectionID)
	t.mu.Unlock()
	if s == nil {
		return nil, false
	}
	log := t.log.With(zap.String("user_id", s.UserID), zap.String("connection_id", connectionID))

	release, err := t.locks.acquire(ctx, s.UserID)
	if err != nil {
		log.Warn("disconnect without match lock", zap.Error(err))
	} else {
		defer release()
	}

	p, err := t.LookupPresence(ctx, s.UserID)
	if err != nil {
		log.Error("lookup presence on disconnect", zap.Error(err))
		return s, false
	}
	if p == nil || p.ConnectionID != connectionID {
		log.Debug("stale connection closed")
		return s, false
	}

	if _, err := t.queue.Remove(ctx, s.UserID); err != nil {
		log.Error("remove queue entry on disconnect", zap.Error(err))
	}
	raw, err := encodePresence(p)
	if err == nil {
		_, err = t.store.CompareAndDelete(ctx, domain.NamespaceUserConnections, s.UserID, raw)
	}
	if err != nil {
		log.Error("remove presence on disconnect", zap.Error(err))
	}
	log.Debug("disconnected")
	return s, true
}

// Session returns the record for connectionID, or nil.
func (t *SessionTracker) Session(connectionID string) *Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[connectionID]
}

// RegisterPresence overwrites the presence entry for userID.
func (t *SessionTracker) RegisterPresence(ctx context.Context, userID, connectionID, username string) error {
	raw, err := encodePresence(&Presence{ConnectionID: connectionID, Username: username})
	if err != nil {
		return err
	}
	return t.store.Set(ctx, domain.NamespaceUserConnections, userID, raw)
}

// DeregisterPresence removes the user's queue entry and then the presence entry.
// Calling it for an absent user is a no-op.
func (t *SessionTracker) DeregisterPresence(ctx context.Context, userID string) error {
	if _, err := t.queue.Remove(ctx, userID); err != nil {
		return err
	}
	_, err := t.store.Delete(ctx, domain.NamespaceUserConnections, userID)
	return err
}

// LookupPresence returns nil when the user is offline.
func (t *SessionTracker) LookupPresence(ctx context.Context, userID string) (*Presence, error) {
	raw, err := t.store.Get(ctx, domain.NamespaceUserConnections, userID)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Presence
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func encodePresence(p *Presence) (string, error) {
	b, err := json.Marshal(p)
	return string(b), err
}
