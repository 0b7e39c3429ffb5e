package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"finchat/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(session *model.Session) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(id string) (*model.Session, error) {
	var session model.Session
	if err := r.db.Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) ListByUserID(userID string, limit int) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

// UpdateMeta refreshes the session title and last-update time after a
// completed turn. Only metadata changes; messages are never touched.
func (r *SessionRepository) UpdateMeta(id, title string, updatedAt time.Time) error {
	patch := map[string]any{"title": title, "updated_at": updatedAt}
	if err := r.db.Model(&model.Session{}).Where("id = ?", id).Updates(patch).Error; err != nil {
		return fmt.Errorf("update session failed: %w", err)
	}
	return nil
}

// Promote assigns an owner to a session only while it is still
// anonymous. Matching zero rows is not an error: the operation is
// idempotent and an already-claimed session keeps its owner.
func (r *SessionRepository) Promote(id, userID string) error {
	err := r.db.Model(&model.Session{}).
		Where("id = ? AND user_id IS NULL", id).
		Update("user_id", userID).Error
	if err != nil {
		return fmt.Errorf("promote session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) Delete(id string) error {
	if err := r.db.Where("id = ?", id).Delete(&model.Session{}).Error; err != nil {
		return fmt.Errorf("delete session failed: %w", err)
	}
	return nil
}
