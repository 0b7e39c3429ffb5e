package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is immutable once written. The compound index on
// (session_id, created_at) backs both history loading and cursor
// pagination; created_at keeps microsecond precision so the
// (created_at, id) pair totally orders a session's messages.
type Message struct {
	ID        string     `gorm:"primaryKey;size:36" json:"message_id"`
	SessionID string     `gorm:"size:36;not null;index:idx_messages_session_created,priority:1" json:"session_id"`
	Role      string     `gorm:"size:16;not null" json:"role"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	Sources   SourceList `gorm:"type:json" json:"sources,omitempty"`
	CreatedAt time.Time  `gorm:"type:datetime(6);index:idx_messages_session_created,priority:2" json:"timestamp"`
}

// Source is one retrieved FAQ excerpt attached to an assistant
// message as provenance. Metadata values are restricted to JSON
// scalars.
type Source struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// SourceList stores citations as a JSON column. Old records hold a
// bare list of document IDs; those are unreadable as structured
// citations and scan to empty rather than failing the row.
type SourceList []Source

func (l SourceList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal sources failed: %w", err)
	}
	return string(raw), nil
}

func (l *SourceList) Scan(value any) error {
	*l = nil
	if value == nil {
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan sources: unsupported type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}

	var sources []Source
	if err := json.Unmarshal(raw, &sources); err != nil {
		// Legacy format: ["doc-1", "doc-2"]. Normalize to empty.
		return nil
	}
	*l = sources
	return nil
}

// ScalarMetadata coerces metadata to the closed scalar set
// {string, number, boolean, null}; anything else becomes its string
// representation so the column stays serializable.
func ScalarMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return map[string]any{}
	}
	clean := make(map[string]any, len(metadata))
	for k, v := range metadata {
		switch v.(type) {
		case string, bool, nil,
			int, int32, int64, float32, float64, json.Number:
			clean[k] = v
		default:
			clean[k] = fmt.Sprintf("%v", v)
		}
	}
	return clean
}
