package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"finchat/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreatePair inserts a completed turn (user message plus assistant
// message) in one statement. Turns are only ever written whole.
func (r *MessageRepository) CreatePair(userMsg, assistantMsg *model.Message) error {
	pair := []*model.Message{userMsg, assistantMsg}
	if err := r.db.Create(&pair).Error; err != nil {
		return fmt.Errorf("create message pair failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(id string) (*model.Message, error) {
	var message model.Message
	if err := r.db.Where("id = ?", id).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message failed: %w", err)
	}
	return &message, nil
}

// ListRecent returns the last `limit` messages of a session in
// chronological order.
func (r *MessageRepository) ListRecent(sessionID string, limit int) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list recent messages failed: %w", err)
	}
	reverse(messages)
	return messages, nil
}

// ListPageBefore returns up to `limit` messages ordered newest first.
// With a cursor, only messages compound-strictly-older than the cursor
// message qualify; the (created_at, id) pair keeps pages stable when
// timestamps collide.
func (r *MessageRepository) ListPageBefore(sessionID string, cursor *model.Message, limit int) ([]model.Message, error) {
	query := r.db.Where("session_id = ?", sessionID)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var messages []model.Message
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list message page failed: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) CountBySession(sessionID string) (int64, error) {
	var count int64
	if err := r.db.Model(&model.Message{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count messages failed: %w", err)
	}
	return count, nil
}

// LastBySession returns the newest message of a session, or nil when
// the session has none.
func (r *MessageRepository) LastBySession(sessionID string) (*model.Message, error) {
	var message model.Message
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get last message failed: %w", err)
	}
	return &message, nil
}

func (r *MessageRepository) DeleteBySession(sessionID string) error {
	if err := r.db.Where("session_id = ?", sessionID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete session messages failed: %w", err)
	}
	return nil
}

func reverse(messages []model.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
