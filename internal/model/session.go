package model

import "time"

// Session is conversation metadata only; messages live in their own
// table. UserID is nil for anonymous sessions and, once set, is never
// cleared again.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"session_id"`
	UserID    *string   `gorm:"size:36;index" json:"user_id"`
	Title     string    `gorm:"size:128" json:"title"`
	CreatedAt time.Time `gorm:"type:datetime(6);index" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:datetime(6);index" json:"updated_at"`
}

// Owned reports whether the session has been claimed by any user.
func (s *Session) Owned() bool {
	return s.UserID != nil && *s.UserID != ""
}

// OwnedBy reports whether the session belongs to the given user.
func (s *Session) OwnedBy(userID string) bool {
	return s.UserID != nil && *s.UserID == userID
}
