package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatio/internal/cache"
	"chatio/internal/domain"

	"github.com/google/uuid"
)

type queueEntry struct {
	UserID string `json:"user_id"`
}

// MatchQueue is the waiting-stranger queue. Every mutation is a single atomic
// store call.
type MatchQueue struct {
	store cache.Store
}

func NewMatchQueue(store cache.Store) *MatchQueue {
	return &MatchQueue{store: store}
}

// Enqueue adds userID unless it is already waiting. An existing entry keeps its
// position.
func (q *MatchQueue) Enqueue(ctx context.Context, userID string) (bool, error) {
	b, err := json.Marshal(queueEntry{UserID: userID})
	if err != nil {
		return false, err
	}
	return q.store.SetNX(ctx, domain.NamespaceStrangerQueue, userID, string(b))
}

func (q *MatchQueue) Remove(ctx context.Context, userID string) (bool, error) {
	return q.store.Delete(ctx, domain.NamespaceStrangerQueue, userID)
}

// PopPeer claims the oldest waiting user other than userID and drops userID's
// own entry in the same step.
func (q *MatchQueue) PopPeer(ctx context.Context, userID string) (string, bool, error) {
	key, raw, ok, err := q.store.PopPair(ctx, domain.NamespaceStrangerQueue, userID)
	if err != nil || !ok {
		return "", false, err
	}
	var e queueEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.UserID == "" {
		return key, true, nil
	}
	return e.UserID, true, nil
}

func (q *MatchQueue) Contains(ctx context.Context, userID string) (bool, error) {
	_, err := q.store.Get(ctx, domain.NamespaceStrangerQueue, userID)
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	return err == nil, err
}

// Waiting lists queued users, oldest first.
func (q *MatchQueue) Waiting(ctx context.Context) ([]string, error) {
	return q.store.Keys(ctx, domain.NamespaceStrangerQueue)
}

// userLocks serialises matching work per user across server instances.
type userLocks struct {
	store cache.Store
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
}

func lockKey(userID string) string { return "match:" + userID }

// acquire blocks until the user's lock is taken or wait elapses.
func (l *userLocks) acquire(ctx context.Context, userID string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.store.Lock(ctx, lockKey(userID), token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("lock user %s: %w", userID, err)
		}
		if ok {
			return l.releaser(userID, token), nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock user %s: %w", userID, ErrConcurrencyConflict)
		}
		t := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (l *userLocks) releaser(userID, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = l.store.Unlock(ctx, lockKey(userID), token)
	}
}
