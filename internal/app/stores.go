package app

import (
	"context"
	"time"

	"finchat/internal/ai"
	"finchat/internal/model"
)

// Collaborator interfaces are declared here, on the consumer side.
// The repository and gateway packages satisfy them; tests substitute
// in-memory fakes.

type SessionStore interface {
	Create(session *model.Session) error
	GetByID(id string) (*model.Session, error)
	ListByUserID(userID string, limit int) ([]model.Session, error)
	UpdateMeta(id, title string, updatedAt time.Time) error
	Promote(id, userID string) error
	Delete(id string) error
}

type MessageStore interface {
	CreatePair(userMsg, assistantMsg *model.Message) error
	GetByID(id string) (*model.Message, error)
	ListRecent(sessionID string, limit int) ([]model.Message, error)
	ListPageBefore(sessionID string, cursor *model.Message, limit int) ([]model.Message, error)
	CountBySession(sessionID string) (int64, error)
	LastBySession(sessionID string) (*model.Message, error)
	DeleteBySession(sessionID string) error
}

// Retriever is the vector retrieval gateway boundary.
type Retriever interface {
	SearchSimilar(ctx context.Context, query string, topK int, namespace string, filter map[string]string) ([]model.Source, error)
}

// Completer is the LLM provider boundary.
type Completer interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(chunk string) error) (string, error)
}
