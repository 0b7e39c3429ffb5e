package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"finchat/internal/ai"
	"finchat/internal/model"
)

func zapNop() *zap.Logger { return zap.NewNop() }

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	err      error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*model.Session)}
}

func (s *fakeSessionStore) Create(session *model.Session) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	stored := *session
	s.sessions[session.ID] = &stored
	return nil
}

func (s *fakeSessionStore) GetByID(id string) (*model.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *fakeSessionStore) ListByUserID(userID string, limit int) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.Session
	for _, session := range s.sessions {
		if session.OwnedBy(userID) {
			result = append(result, *session)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *fakeSessionStore) UpdateMeta(id, title string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.Title = title
		session.UpdatedAt = updatedAt
	}
	return nil
}

func (s *fakeSessionStore) Promote(id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok && !session.Owned() {
		owner := userID
		session.UserID = &owner
	}
	return nil
}

func (s *fakeSessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages []model.Message
	err      error
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{}
}

func (s *fakeMessageStore) CreatePair(userMsg, assistantMsg *model.Message) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *userMsg, *assistantMsg)
	return nil
}

func (s *fakeMessageStore) GetByID(id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ID == id {
			copied := msg
			return &copied, nil
		}
	}
	return nil, nil
}

// ordered returns a session's messages newest first under the
// (created_at desc, id desc) compound order.
func (s *fakeMessageStore) ordered(sessionID string) []model.Message {
	var result []model.Message
	for _, msg := range s.messages {
		if msg.SessionID == sessionID {
			result = append(result, msg)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result
}

func (s *fakeMessageStore) ListRecent(sessionID string, limit int) ([]model.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	newest := s.ordered(sessionID)
	if len(newest) > limit {
		newest = newest[:limit]
	}
	for i, j := 0, len(newest)-1; i < j; i, j = i+1, j-1 {
		newest[i], newest[j] = newest[j], newest[i]
	}
	return newest, nil
}

func (s *fakeMessageStore) ListPageBefore(sessionID string, cursor *model.Message, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.Message
	for _, msg := range s.ordered(sessionID) {
		if cursor != nil {
			older := msg.CreatedAt.Before(cursor.CreatedAt) ||
				(msg.CreatedAt.Equal(cursor.CreatedAt) && msg.ID < cursor.ID)
			if !older {
				continue
			}
		}
		result = append(result, msg)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *fakeMessageStore) CountBySession(sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, msg := range s.messages {
		if msg.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

func (s *fakeMessageStore) LastBySession(sessionID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	newest := s.ordered(sessionID)
	if len(newest) == 0 {
		return nil, nil
	}
	copied := newest[0]
	return &copied, nil
}

func (s *fakeMessageStore) DeleteBySession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	for _, msg := range s.messages {
		if msg.SessionID != sessionID {
			kept = append(kept, msg)
		}
	}
	s.messages = kept
	return nil
}

type fakeRetriever struct {
	sources []model.Source
	err     error

	lastQuery string
	lastTopK  int
}

func (r *fakeRetriever) SearchSimilar(_ context.Context, query string, topK int, _ string, _ map[string]string) ([]model.Source, error) {
	r.lastQuery = query
	r.lastTopK = topK
	if r.err != nil {
		return nil, r.err
	}
	return r.sources, nil
}

type fakeCompleter struct {
	reply      string
	titleReply string
	chunks     []string

	completeErr error
	titleErr    error
	streamErr   error

	lastPrompt  []ai.ChatMessage
	titlePrompt []ai.ChatMessage
}

func (c *fakeCompleter) Complete(_ context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	if cfg.Model == "title-model" {
		c.titlePrompt = messages
		return c.titleReply, c.titleErr
	}
	c.lastPrompt = messages
	return c.reply, c.completeErr
}

func (c *fakeCompleter) StreamComplete(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	c.lastPrompt = messages
	var full string
	for _, chunk := range c.chunks {
		if err := onChunk(chunk); err != nil {
			return full, err
		}
		full += chunk
	}
	if c.streamErr != nil {
		return full, c.streamErr
	}
	return full, nil
}

func newTestChatService(sessions *fakeSessionStore, messages *fakeMessageStore, retriever *fakeRetriever, llm *fakeCompleter) *ChatService {
	return NewChatService(
		NewSessionResolver(sessions),
		sessions,
		messages,
		retriever,
		llm,
		GenerationOptions{
			Chat:      ai.ChatConfig{Model: "main-model"},
			Title:     ai.ChatConfig{Model: "title-model", MaxTokens: 20, Temperature: 0.7},
			TopK:      3,
			Namespace: "faq",
		},
		zapNop(),
	)
}
