package repository

import (
	"context"
	"errors"
	"time"

	"chatio/internal/domain"
	"chatio/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository implements ChatStore on gorm. Soft-deleted conversations and
// messages are filtered explicitly in every query.
type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

var _ ChatStore = (*ChatRepository)(nil)

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *ChatRepository) Transaction(ctx context.Context, fn func(tx ChatStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ChatRepository{db: tx})
	})
}

func (r *ChatRepository) FindConversationTypeByName(ctx context.Context, name string) (*models.MasterConversationType, error) {
	var t models.MasterConversationType
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *ChatRepository) CreateConversation(ctx context.Context, c *models.Conversation) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error
}

func (r *ChatRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	err := r.db.WithContext(ctx).
		Preload("ConversationType").
		Where("id = ? AND deleted_at IS NULL", id).
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *ChatRepository) ListConversations(ctx context.Context, f ConversationFilter) ([]models.Conversation, error) {
	db := r.db.WithContext(ctx)
	memberships := db.Model(&models.ConversationParticipant{}).
		Select("conversation_id").
		Where("user_id = ?", f.UserID)
	if f.IsLeft != nil {
		if *f.IsLeft {
			memberships = memberships.Where("left_at IS NOT NULL")
		} else {
			memberships = memberships.Where("left_at IS NULL")
		}
	}

	q := db.Preload("ConversationType").
		Where("conversations.deleted_at IS NULL AND conversations.id IN (?)", memberships)
	if f.Type != "" {
		q = q.Where("conversations.conversation_type_id IN (?)",
			db.Model(&models.MasterConversationType{}).Select("id").Where("name = ?", f.Type))
	}

	var list []models.Conversation
	err := q.Order("conversations.created_at DESC").Find(&list).Error
	return list, err
}

func (r *ChatRepository) BulkInsertParticipants(ctx context.Context, ps []models.ConversationParticipant) error {
	if len(ps) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(&ps).Error
}

// participants applies f to a participant query.
func (r *ChatRepository) participants(db *gorm.DB, f ParticipantFilter) *gorm.DB {
	q := db.Model(&models.ConversationParticipant{})
	if f.ConversationID != "" {
		q = q.Where("conversation_id = ?", f.ConversationID)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.ActiveOnly {
		q = q.Where("left_at IS NULL")
	}
	if f.ConversationType != "" {
		typed := db.Model(&models.Conversation{}).
			Select("conversations.id").
			Joins("JOIN master_conversation_types ON master_conversation_types.id = conversations.conversation_type_id").
			Where("master_conversation_types.name = ? AND conversations.deleted_at IS NULL", f.ConversationType)
		q = q.Where("conversation_id IN (?)", typed)
	}
	return q
}

func (r *ChatRepository) FindParticipants(ctx context.Context, f ParticipantFilter) ([]models.ConversationParticipant, error) {
	var list []models.ConversationParticipant
	err := r.participants(r.db.WithContext(ctx), f).Order("joined_at ASC").Find(&list).Error
	return list, err
}

// UpdateParticipantsLeftAt stamps left_at on the active rows matching f and
// returns those rows as they are after the update.
func (r *ChatRepository) UpdateParticipantsLeftAt(ctx context.Context, f ParticipantFilter, at time.Time) ([]models.ConversationParticipant, error) {
	db := r.db.WithContext(ctx)
	f.ActiveOnly = true

	var ids []string
	if err := r.participants(db, f).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err := db.Model(&models.ConversationParticipant{}).
		Where("id IN ? AND left_at IS NULL", ids).
		Update("left_at", at).Error
	if err != nil {
		return nil, err
	}

	var updated []models.ConversationParticipant
	err = db.Where("id IN ?", ids).Order("joined_at ASC").Find(&updated).Error
	return updated, err
}

func (r *ChatRepository) FindActiveStrangerMembership(ctx context.Context, userID string) (*models.ConversationParticipant, error) {
	var p models.ConversationParticipant
	err := r.participants(r.db.WithContext(ctx), ParticipantFilter{
		UserID:           userID,
		ConversationType: domain.ConversationTypeStranger,
		ActiveOnly:       true,
	}).Order("joined_at DESC").First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *ChatRepository) CreateMessage(ctx context.Context, m *models.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *ChatRepository) FindMessages(ctx context.Context, f MessageFilter, p Page) ([]models.Message, error) {
	q := r.db.WithContext(ctx).
		Where("conversation_id = ? AND deleted_at IS NULL", f.ConversationID)
	if f.MessageID != "" {
		q = q.Where("id = ?", f.MessageID)
	}
	if len(f.MessageIDs) > 0 {
		q = q.Where("id IN ?", f.MessageIDs)
	}
	if f.SenderID != "" {
		q = q.Where("sender_id = ?", f.SenderID)
	}

	var list []models.Message
	err := q.Order("sent_at DESC").Offset(p.Offset).Limit(p.Limit).Find(&list).Error
	return list, err
}

// MarkMessagesRead inserts one receipt per message. Receipts that already exist
// keep their original read time.
func (r *ChatRepository) MarkMessagesRead(ctx context.Context, userID string, messageIDs []string, at time.Time) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	reads := make([]models.MessageRead, 0, len(messageIDs))
	for _, id := range messageIDs {
		reads = append(reads, models.MessageRead{MessageID: id, UserID: userID, ReadAt: at})
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&reads)
	return res.RowsAffected, res.Error
}
