package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chatio/config"
	"chatio/internal/cache"
	"chatio/internal/database"
	"chatio/internal/domain"
	"chatio/internal/repository"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type emitted struct {
	ConnectionID string
	Event        string
	Payload      any
}

type recordingPusher struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (p *recordingPusher) Emit(connectionID, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, emitted{ConnectionID: connectionID, Event: event, Payload: payload})
	return nil
}

func (p *recordingPusher) sentTo(connectionID string) []emitted {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []emitted
	for _, e := range p.events {
		if e.ConnectionID == connectionID {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	store         cache.Store
	repo          *repository.ChatRepository
	sessions      *SessionTracker
	conversations *ConversationManager
	matchmaker    *Matchmaker
	dispatcher    *Dispatcher
	pusher        *recordingPusher
}

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		MatchLockTTL:    10 * time.Second,
		MatchLockWait:   5 * time.Second,
		HistoryPageSize: 50,
	}
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewDB(&config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             filepath.Join(t.TempDir(), "chat.db"),
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.SeedMasterData(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newHarness(t *testing.T, store cache.Store, cfg config.ChatConfig) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	repo := repository.NewChatRepository(testDB(t))
	sessions := NewSessionTracker(store, cfg, log)
	conversations := NewConversationManager(repo, log)
	pusher := &recordingPusher{}
	return &harness{
		store:         store,
		repo:          repo,
		sessions:      sessions,
		conversations: conversations,
		matchmaker:    NewMatchmaker(store, conversations, sessions, cfg, log),
		dispatcher:    NewDispatcher(repo, conversations, sessions, pusher, cfg, log),
		pusher:        pusher,
	}
}

func newMemoryHarness(t *testing.T) *harness {
	t.Helper()
	return newHarness(t, cache.NewMemoryStore(), testChatConfig())
}

func newRedisHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	store := cache.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "chatio")
	t.Cleanup(func() { _ = store.Close() })
	return newHarness(t, store, testChatConfig())
}

// connect registers userID on connection "conn-<userID>".
func (h *harness) connect(t *testing.T, userID string) string {
	t.Helper()
	conn := "conn-" + userID
	if _, err := h.sessions.Connect(context.Background(), conn, userID, userID+"-name"); err != nil {
		t.Fatalf("connect %s: %v", userID, err)
	}
	return conn
}

func (h *harness) requestMatch(t *testing.T, userID string) *MatchResult {
	t.Helper()
	res, err := h.matchmaker.RequestMatch(context.Background(), userID)
	if err != nil {
		t.Fatalf("RequestMatch(%s): %v", userID, err)
	}
	return res
}

func (h *harness) waiting(t *testing.T) []string {
	t.Helper()
	keys, err := h.matchmaker.queue.Waiting(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return keys
}

// assertQueueInvariant checks that no queued user holds an active stranger membership.
func (h *harness) assertQueueInvariant(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, u := range h.waiting(t) {
		busy, err := h.conversations.HasActiveStranger(ctx, u)
		if err != nil {
			t.Fatal(err)
		}
		if busy {
			t.Errorf("user %s is queued while in an active stranger conversation", u)
		}
	}
}

func participantUsers(res *MatchResult) map[string]bool {
	out := map[string]bool{}
	for _, p := range res.Participants {
		out[p.UserID] = true
	}
	return out
}

func isMatched(res *MatchResult) bool { return res.Status == domain.MatchStatusMatched }
