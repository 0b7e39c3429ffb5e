package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"finchat/internal/model"
)

// Stream event types, emitted in a fixed order: one sources event,
// zero or more content fragments, then exactly one done event. The
// error variant replaces done when generation fails mid-stream.
const (
	EventSources = "sources"
	EventContent = "content"
	EventDone    = "done"
	EventError   = "error"
)

type StreamEvent struct {
	Type    string
	Sources []model.Source
	Content string
	Err     error
}

// StreamStart carries the resolved session identity ahead of the
// event stream so the transport can answer with the session id and
// cookie before the first token arrives.
type StreamStart struct {
	SessionID string
	SetCookie bool
	Events    <-chan StreamEvent
}

// StreamMessage handles one streaming chat turn. Session resolution
// and history loading happen synchronously; generation runs in a
// producer goroutine writing to an unbuffered channel, so the
// consumer's pace bounds provider consumption. If the consumer's
// context is canceled, the producer stops pulling tokens and skips
// persistence entirely: a turn is only written after the done event
// was delivered, from exactly the fragments the consumer received.
func (s *ChatService) StreamMessage(ctx context.Context, input SendMessageInput) (*StreamStart, error) {
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

	events := make(chan StreamEvent)
	go s.runStream(ctx, session, history, content, events)

	return &StreamStart{
		SessionID: session.ID,
		SetCookie: res.SetCookie,
		Events:    events,
	}, nil
}

func (s *ChatService) runStream(ctx context.Context, session *model.Session, history []model.Message, content string, events chan<- StreamEvent) {
	defer close(events)

	sources, err := s.retriever.SearchSimilar(ctx, content, s.opts.TopK, s.opts.Namespace, nil)
	if err != nil {
		s.emit(ctx, events, StreamEvent{Type: EventError, Err: fmt.Errorf("%w: %v", ErrUpstream, err)})
		return
	}

	// Citations go out before any content so clients can render them
	// immediately.
	if !s.emit(ctx, events, StreamEvent{Type: EventSources, Sources: sources}) {
		return
	}

	prompt := buildPrompt(content, sources, history)

	var received strings.Builder
	_, err = s.llm.StreamComplete(ctx, s.opts.Chat, prompt, func(chunk string) error {
		if !s.emit(ctx, events, StreamEvent{Type: EventContent, Content: chunk}) {
			return context.Canceled
		}
		received.WriteString(chunk)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			// Consumer gone: a partial turn is never persisted.
			return
		}
		s.emit(ctx, events, StreamEvent{Type: EventError, Err: fmt.Errorf("%w: %v", ErrUpstream, err)})
		return
	}

	if !s.emit(ctx, events, StreamEvent{Type: EventDone}) {
		return
	}

	// The assistant text persisted below is the concatenation of the
	// fragments actually delivered, never the provider's own copy, so
	// storage matches what the client rendered byte for byte.
	userMsg, assistantMsg := s.buildTurn(session.ID, content, received.String(), sources)
	title := s.sessionTitle(ctx, session, history, content)

	if err := s.messages.CreatePair(userMsg, assistantMsg); err != nil {
		s.logger.Error("persist streamed turn failed",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		return
	}
	if err := s.sessions.UpdateMeta(session.ID, title, assistantMsg.CreatedAt); err != nil {
		s.logger.Error("update session after stream failed",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}
}

// emit delivers one event unless the consumer has gone away.
func (s *ChatService) emit(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
