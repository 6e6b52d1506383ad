package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"chatio/config"
	"chatio/internal/database"
	"chatio/internal/domain"
	"chatio/internal/models"

	"gorm.io/gorm"
)

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

func createConversation(t *testing.T, repo *ChatRepository, typeName string, userIDs ...string) *models.Conversation {
	t.Helper()
	ctx := context.Background()
	ct, err := repo.FindConversationTypeByName(ctx, typeName)
	if err != nil {
		t.Fatalf("type %s: %v", typeName, err)
	}
	conv := &models.Conversation{ConversationTypeID: ct.ID}
	if err := repo.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}
	var ps []models.ConversationParticipant
	for _, id := range userIDs {
		ps = append(ps, models.ConversationParticipant{ConversationID: conv.ID, UserID: id})
	}
	if err := repo.BulkInsertParticipants(ctx, ps); err != nil {
		t.Fatal(err)
	}
	return conv
}

func TestFindConversationTypeByNameMissing(t *testing.T) {
	repo := NewChatRepository(testDB(t))
	_, err := repo.FindConversationTypeByName(context.Background(), "NOPE")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTransactionRollsBackConversation(t *testing.T) {
	db := testDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()
	boom := errors.New("boom")

	var convID string
	err := repo.Transaction(ctx, func(tx ChatStore) error {
		ct, err := tx.FindConversationTypeByName(ctx, domain.ConversationTypeStranger)
		if err != nil {
			return err
		}
		conv := &models.Conversation{ConversationTypeID: ct.ID}
		if err := tx.CreateConversation(ctx, conv); err != nil {
			return err
		}
		convID = conv.ID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := repo.GetConversation(ctx, convID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("conversation survived rollback: %v", err)
	}
}

func TestFindActiveStrangerMembership(t *testing.T) {
	repo := NewChatRepository(testDB(t))
	ctx := context.Background()

	createConversation(t, repo, domain.ConversationTypeDirect, "alice", "bob")
	if _, err := repo.FindActiveStrangerMembership(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("direct conversation counted as stranger: %v", err)
	}

	conv := createConversation(t, repo, domain.ConversationTypeStranger, "alice", "bob")
	p, err := repo.FindActiveStrangerMembership(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.ConversationID != conv.ID {
		t.Errorf("conversation = %s, want %s", p.ConversationID, conv.ID)
	}

	if _, err := repo.UpdateParticipantsLeftAt(ctx, ParticipantFilter{ConversationID: conv.ID, UserID: "alice"}, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.FindActiveStrangerMembership(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("left membership still active: %v", err)
	}
	if _, err := repo.FindActiveStrangerMembership(ctx, "bob"); err != nil {
		t.Fatalf("peer membership lost: %v", err)
	}
}

func TestUpdateParticipantsLeftAt(t *testing.T) {
	repo := NewChatRepository(testDB(t))
	ctx := context.Background()
	conv := createConversation(t, repo, domain.ConversationTypeStranger, "alice", "bob")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	updated, err := repo.UpdateParticipantsLeftAt(ctx, ParticipantFilter{ConversationID: conv.ID, UserID: "bob"}, at)
	if err != nil {
		t.Fatal(err)
	}
	if len(updated) != 1 || updated[0].UserID != "bob" || updated[0].LeftAt == nil {
		t.Fatalf("updated = %+v", updated)
	}

	// already-left rows are not stamped again
	updated, err = repo.UpdateParticipantsLeftAt(ctx, ParticipantFilter{ConversationID: conv.ID}, at.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(updated) != 1 || updated[0].UserID != "alice" {
		t.Fatalf("full teardown updated %+v, want only alice", updated)
	}

	active, err := repo.FindParticipants(ctx, ParticipantFilter{ConversationID: conv.ID, ActiveOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Fatalf("active = %d, want 0", len(active))
	}

	none, err := repo.UpdateParticipantsLeftAt(ctx, ParticipantFilter{ConversationID: conv.ID}, at)
	if err != nil || len(none) != 0 {
		t.Fatalf("no-op update = %v, %v", none, err)
	}
}

func TestListConversations(t *testing.T) {
	repo := NewChatRepository(testDB(t))
	ctx := context.Background()

	direct := createConversation(t, repo, domain.ConversationTypeDirect, "alice", "carol")
	stranger := createConversation(t, repo, domain.ConversationTypeStranger, "alice", "bob")
	createConversation(t, repo, domain.ConversationTypeStranger, "bob", "carol")
	if _, err := repo.UpdateParticipantsLeftAt(ctx, ParticipantFilter{ConversationID: direct.ID, UserID: "alice"}, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	left, active := true, false
	tests := []struct {
		name   string
		filter ConversationFilter
		want   []string
	}{
		{"all", ConversationFilter{UserID: "alice"}, []string{direct.ID, stranger.ID}},
		{"by type", ConversationFilter{UserID: "alice", Type: domain.ConversationTypeStranger}, []string{stranger.ID}},
		{"left only", ConversationFilter{UserID: "alice", IsLeft: &left}, []string{direct.ID}},
		{"active only", ConversationFilter{UserID: "alice", IsLeft: &active}, []string{stranger.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := repo.ListConversations(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			got := map[string]bool{}
			for _, c := range list {
				got[c.ID] = true
				if c.ConversationType == nil {
					t.Errorf("conversation %s without preloaded type", c.ID)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d conversations, want %d", len(got), len(tt.want))
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("missing conversation %s", id)
				}
			}
		})
	}
}

func TestSoftDeletedRowsAreHidden(t *testing.T) {
	db := testDB(t)
	repo := NewChatRepository(db)
	ctx := context.Background()
	conv := createConversation(t, repo, domain.ConversationTypeStranger, "alice", "bob")

	msg := &models.Message{SenderID: "alice", ConversationID: conv.ID, Content: "gone"}
	if err := repo.CreateMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	db.Model(&models.Message{}).Where("id = ?", msg.ID).Update("deleted_at", now)
	db.Model(&models.Conversation{}).Where("id = ?", conv.ID).Update("deleted_at", now)

	msgs, err := repo.FindMessages(ctx, MessageFilter{ConversationID: conv.ID}, Page{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("soft-deleted message returned: %+v", msgs)
	}
	if _, err := repo.GetConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("soft-deleted conversation returned: %v", err)
	}
	if _, err := repo.FindActiveStrangerMembership(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("membership of soft-deleted conversation counted: %v", err)
	}
}

func TestFindMessagesOrderAndFilters(t *testing.T) {
	repo := NewChatRepository(testDB(t))
	ctx := context.Background()
	conv := createConversation(t, repo, domain.ConversationTypeStranger, "alice", "bob")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i, sender := range []string{"alice", "bob", "alice"} {
		m := &models.Message{SenderID: sender, ConversationID: conv.ID, Content: sender, SentAt: base.Add(time.Duration(i) * time.Second)}
		if err := repo.CreateMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.ID)
	}

	all, err := repo.FindMessages(ctx, MessageFilter{ConversationID: conv.ID}, Page{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Fatalf("order wrong: %+v", all)
	}

	page, _ := repo.FindMessages(ctx, MessageFilter{ConversationID: conv.ID}, Page{Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].ID != ids[1] {
		t.Fatalf("page = %+v, want second newest", page)
	}

	bySender, _ := repo.FindMessages(ctx, MessageFilter{ConversationID: conv.ID, SenderID: "bob"}, Page{Limit: 10})
	if len(bySender) != 1 || bySender[0].SenderID != "bob" {
		t.Fatalf("sender filter = %+v", bySender)
	}

	one, _ := repo.FindMessages(ctx, MessageFilter{ConversationID: conv.ID, MessageID: ids[0]}, Page{Limit: 10})
	if len(one) != 1 || one[0].ID != ids[0] {
		t.Fatalf("id filter = %+v", one)
	}
}

func TestMarkMessagesReadIsIdempotent(t *testing.T) {
	repo := NewChatRepository(testDB(t))
	ctx := context.Background()
	conv := createConversation(t, repo, domain.ConversationTypeStranger, "alice", "bob")
	m := &models.Message{SenderID: "alice", ConversationID: conv.ID, Content: "hi"}
	if err := repo.CreateMessage(ctx, m); err != nil {
		t.Fatal(err)
	}

	n, err := repo.MarkMessagesRead(ctx, "bob", []string{m.ID}, time.Now().UTC())
	if err != nil || n != 1 {
		t.Fatalf("first mark = %d, %v", n, err)
	}
	n, err = repo.MarkMessagesRead(ctx, "bob", []string{m.ID}, time.Now().UTC())
	if err != nil || n != 0 {
		t.Fatalf("second mark = %d, %v; want 0", n, err)
	}
}
