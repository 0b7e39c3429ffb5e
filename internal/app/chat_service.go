package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finchat/internal/ai"
	"finchat/internal/model"
)

const (
	// historyLimit bounds the prior conversation included in a prompt.
	historyLimit = 10
	// maxCitations caps persisted sources per assistant message.
	maxCitations = 3

	titleFallbackRunes = 50
	previewRunes       = 100

	defaultPageSize  = 50
	maxPageSize      = 100
	sessionListLimit = 100
)

const systemPrompt = `You are a helpful AI assistant for a fintech company.
You answer questions about account management, payments, security, regulations, and technical support.

Use the provided context from the FAQ knowledge base to answer questions accurately.
If the context doesn't contain relevant information, politely say you don't have that information
and suggest the user contact support.

Always be professional, clear, and concise in your responses.`

const noContextPlaceholder = "No relevant FAQ information found."

// GenerationOptions bundle the model and retrieval settings for
// response generation.
type GenerationOptions struct {
	Chat      ai.ChatConfig
	Title     ai.ChatConfig
	TopK      int
	Namespace string
}

// ChatService runs the retrieval-augmented conversation pipeline:
// session resolution, context assembly, response generation, and
// turn persistence. All state lives in the stores; nothing is cached
// in process.
type ChatService struct {
	resolver *SessionResolver
	sessions SessionStore
	messages MessageStore

	retriever Retriever
	llm       Completer
	opts      GenerationOptions

	logger *zap.Logger
}

func NewChatService(
	resolver *SessionResolver,
	sessions SessionStore,
	messages MessageStore,
	retriever Retriever,
	llm Completer,
	opts GenerationOptions,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		resolver:  resolver,
		sessions:  sessions,
		messages:  messages,
		retriever: retriever,
		llm:       llm,
		opts:      opts,
		logger:    logger,
	}
}

type SendMessageInput struct {
	UserID          string
	SessionID       string
	CookieSessionID string
	Content         string
}

type SendMessageResult struct {
	SessionID string          `json:"session_id"`
	Message   model.Message   `json:"message"`
	Sources   model.SourceList `json:"sources"`

	// SetCookie tells the transport to issue a fresh anonymous session
	// cookie for SessionID.
	SetCookie bool `json:"-"`
}

// SendMessage handles one blocking chat turn. Both turn messages and
// the session metadata update are written only after the full model
// response is available.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrInvalidInput
	}

	res, err := s.resolver.Resolve(input.UserID, input.SessionID, input.CookieSessionID)
	if err != nil {
		return nil, err
	}
	session := res.Session

	history, err := s.messages.ListRecent(session.ID, historyLimit)
	if err != nil {
		return nil, err
	}

	text, sources, err := s.generate(ctx, content, history)
	if err != nil {
		return nil, err
	}

	userMsg, assistantMsg := s.buildTurn(session.ID, content, text, sources)
	title := s.sessionTitle(ctx, session, history, content)

	if err := s.messages.CreatePair(userMsg, assistantMsg); err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateMeta(session.ID, title, assistantMsg.CreatedAt); err != nil {
		return nil, err
	}

	return &SendMessageResult{
		SessionID: session.ID,
		Message:   *assistantMsg,
		Sources:   assistantMsg.Sources,
		SetCookie: res.SetCookie,
	}, nil
}

// generate runs retrieval and one blocking completion. No retries:
// provider failures surface to the caller as upstream errors.
func (s *ChatService) generate(ctx context.Context, userMessage string, history []model.Message) (string, []model.Source, error) {
	sources, err := s.retriever.SearchSimilar(ctx, userMessage, s.opts.TopK, s.opts.Namespace, nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	prompt := buildPrompt(userMessage, sources, history)
	text, err := s.llm.Complete(ctx, s.opts.Chat, prompt)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return text, sources, nil
}

// buildTurn materializes the persisted user/assistant message pair.
// The user timestamp is taken strictly before the assistant one so a
// turn always orders user-then-assistant.
func (s *ChatService) buildTurn(sessionID, userContent, assistantContent string, sources []model.Source) (*model.Message, *model.Message) {
	userMsg := &model.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   userContent,
		CreatedAt: time.Now().UTC(),
	}
	assistantMsg := &model.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      model.RoleAssistant,
		Content:   assistantContent,
		Sources:   citations(sources),
		CreatedAt: time.Now().UTC(),
	}
	if assistantMsg.CreatedAt.Before(userMsg.CreatedAt) {
		assistantMsg.CreatedAt = userMsg.CreatedAt
	}
	return userMsg, assistantMsg
}

// citations keeps at most maxCitations sources and forces metadata
// down to the scalar set before persistence.
func citations(sources []model.Source) model.SourceList {
	kept := sources
	if len(kept) > maxCitations {
		kept = kept[:maxCitations]
	}
	list := make(model.SourceList, len(kept))
	for i, src := range kept {
		list[i] = model.Source{
			ID:       src.ID,
			Score:    src.Score,
			Text:     src.Text,
			Metadata: model.ScalarMetadata(src.Metadata),
		}
	}
	return list
}

// formatContext renders retained documents as numbered blocks in
// retrieval rank order. With no survivors the block degrades to an
// explicit placeholder so the prompt never carries an empty context
// section.
func formatContext(sources []model.Source) string {
	if len(sources) == 0 {
		return noContextPlaceholder
	}

	parts := make([]string, len(sources))
	for i, src := range sources {
		category := "General"
		if c, ok := src.Metadata["category"].(string); ok && c != "" {
			category = c
		}
		parts[i] = fmt.Sprintf("[Source %d - %s]\n%s\n", i+1, category, src.Text)
	}
	return strings.Join(parts, "\n")
}

// buildPrompt assembles the completion input: fixed system
// instruction, prior turns in chronological order, then the final
// user turn replaced by a composite of the context block and the
// literal question. The model never sees raw retrieval objects.
func buildPrompt(userMessage string, sources []model.Source, history []model.Message) []ai.ChatMessage {
	prompt := make([]ai.ChatMessage, 0, len(history)+2)
	prompt = append(prompt, ai.ChatMessage{Role: model.RoleSystem, Content: systemPrompt})

	start := 0
	if len(history) > historyLimit {
		start = len(history) - historyLimit
	}
	for _, msg := range history[start:] {
		prompt = append(prompt, ai.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	composite := fmt.Sprintf("Context from FAQ:\n%s\n\nUser Question: %s", formatContext(sources), userMessage)
	prompt = append(prompt, ai.ChatMessage{Role: model.RoleUser, Content: composite})
	return prompt
}

// sessionTitle returns the title to store with this turn's metadata
// update. Generation fires only on the session's first turn; an
// already-titled session keeps its title.
func (s *ChatService) sessionTitle(ctx context.Context, session *model.Session, history []model.Message, firstMessage string) string {
	if session.Title != "" || len(history) > 0 {
		return session.Title
	}
	return s.generateTitle(ctx, firstMessage)
}

// generateTitle asks a small secondary model for a session title.
// Any failure falls back to a deterministic truncation of the first
// user message; title generation never fails the request.
func (s *ChatService) generateTitle(ctx context.Context, firstMessage string) string {
	text, err := s.llm.Complete(ctx, s.opts.Title, []ai.ChatMessage{
		{Role: model.RoleSystem, Content: "Generate a short, concise title (max 6 words) for a chat conversation based on the user's first message."},
		{Role: model.RoleUser, Content: firstMessage},
	})
	if err != nil {
		s.logger.Warn("title generation failed, using fallback", zap.Error(err))
		return truncateTitle(firstMessage)
	}
	title := strings.TrimSpace(text)
	if title == "" {
		return truncateTitle(firstMessage)
	}
	return title
}

// truncateTitle keeps the first 50 characters, appending an ellipsis
// marker only when truncation actually occurred.
func truncateTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleFallbackRunes {
		return message
	}
	return string(runes[:titleFallbackRunes]) + "..."
}

type SessionSummary struct {
	SessionID          string    `json:"session_id"`
	Title              string    `json:"title"`
	UpdatedAt          time.Time `json:"updated_at"`
	MessageCount       int64     `json:"message_count"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
}

// ListSessions returns the caller's sessions, newest-updated first.
// Authenticated callers see all sessions they own; anonymous callers
// see at most the still-unclaimed session their cookie points to.
func (s *ChatService) ListSessions(userID, cookieSessionID string) ([]SessionSummary, error) {
	var sessions []model.Session
	if userID != "" {
		var err error
		sessions, err = s.sessions.ListByUserID(userID, sessionListLimit)
		if err != nil {
			return nil, err
		}
	} else if cookieSessionID != "" {
		session, err := s.sessions.GetByID(cookieSessionID)
		if err != nil {
			return nil, err
		}
		if session != nil && !session.Owned() {
			sessions = append(sessions, *session)
		}
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		count, err := s.messages.CountBySession(session.ID)
		if err != nil {
			return nil, err
		}
		last, err := s.messages.LastBySession(session.ID)
		if err != nil {
			return nil, err
		}

		summary := SessionSummary{
			SessionID:    session.ID,
			Title:        session.Title,
			UpdatedAt:    session.UpdatedAt,
			MessageCount: count,
		}
		if summary.Title == "" {
			summary.Title = "New Chat"
		}
		if last != nil {
			summary.LastMessagePreview = truncateRunes(last.Content, previewRunes)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

type ListMessagesInput struct {
	UserID    string
	SessionID string
	Limit     int
	Cursor    string
}

type MessagePage struct {
	SessionID  string          `json:"session_id"`
	Messages   []model.Message `json:"messages"`
	TotalCount int64           `json:"total_count"`
	HasMore    bool            `json:"has_more"`
	Cursor     string          `json:"cursor,omitempty"`
}

// ListMessages serves one page of a session's history. Candidates are
// ordered (timestamp desc, id desc); a cursor restricts the set to
// messages compound-strictly-older than the cursor message. The page
// is returned in chronological order with the next cursor set to the
// oldest returned message id.
func (s *ChatService) ListMessages(input ListMessagesInput) (*MessagePage, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	session, err := s.sessions.GetByID(input.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if err := AuthorizeSessionAccess(session, input.UserID); err != nil {
		return nil, err
	}

	var cursor *model.Message
	if input.Cursor != "" {
		cursorMsg, err := s.messages.GetByID(input.Cursor)
		if err != nil {
			return nil, err
		}
		// An unknown or foreign cursor falls back to the first page.
		if cursorMsg != nil && cursorMsg.SessionID == input.SessionID {
			cursor = cursorMsg
		}
	}

	page, err := s.messages.ListPageBefore(input.SessionID, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(page) > limit
	if hasMore {
		page = page[:limit]
	}
	reverseMessages(page)

	nextCursor := ""
	if hasMore && len(page) > 0 {
		nextCursor = page[0].ID
	}

	total, err := s.messages.CountBySession(input.SessionID)
	if err != nil {
		return nil, err
	}

	return &MessagePage{
		SessionID:  input.SessionID,
		Messages:   page,
		TotalCount: total,
		HasMore:    hasMore,
		Cursor:     nextCursor,
	}, nil
}

// DeleteSession removes a session and all its messages, subject to
// the shared ownership check.
func (s *ChatService) DeleteSession(userID, sessionID string) error {
	session, err := s.sessions.GetByID(sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if err := AuthorizeSessionAccess(session, userID); err != nil {
		return err
	}

	if err := s.messages.DeleteBySession(sessionID); err != nil {
		return err
	}
	return s.sessions.Delete(sessionID)
}

func reverseMessages(messages []model.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
