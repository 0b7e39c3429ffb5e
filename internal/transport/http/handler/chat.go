package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"finchat/internal/app"
	"finchat/internal/transport/http/middleware"
	"finchat/internal/transport/http/response"
)

// CookieOptions controls the anonymous session cookie issued alongside
// chat responses. Cross-site deployments need SameSite=None together
// with Secure; development stays on Lax without Secure.
type CookieOptions struct {
	Name     string
	MaxAge   int
	Secure   bool
	SameSite http.SameSite
}

type ChatHandler struct {
	chatService *app.ChatService
	cookie      CookieOptions
}

func NewChatHandler(chatService *app.ChatService, cookie CookieOptions) *ChatHandler {
	return &ChatHandler{chatService: chatService, cookie: cookie}
}

type ChatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
}

// streamPayload is the wire form of one server-sent event.
type streamPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

func (h *ChatHandler) setSessionCookie(c *gin.Context, sessionID string) {
	sameSite := h.cookie.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(h.cookie.Name, sessionID, h.cookie.MaxAge, "/", "", h.cookie.Secure, true)
}

func (h *ChatHandler) cookieSessionID(c *gin.Context) string {
	id, err := c.Cookie(h.cookie.Name)
	if err != nil {
		return ""
	}
	return id
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), app.SendMessageInput{
		UserID:          middleware.UserID(c),
		SessionID:       req.SessionID,
		CookieSessionID: h.cookieSessionID(c),
		Content:         req.Message,
	})
	if err != nil {
		writeChatError(c, err)
		return
	}

	if result.SetCookie {
		h.setSessionCookie(c, result.SessionID)
	}
	response.OK(c, result)
}

// StreamMessage answers with a server-sent event stream: one sources
// event, content fragments, then done. The session cookie is issued in
// the response headers before the first event is written.
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	start, err := h.chatService.StreamMessage(c.Request.Context(), app.SendMessageInput{
		UserID:          middleware.UserID(c),
		SessionID:       req.SessionID,
		CookieSessionID: h.cookieSessionID(c),
		Content:         req.Message,
	})
	if err != nil {
		writeChatError(c, err)
		return
	}

	if start.SetCookie {
		h.setSessionCookie(c, start.SessionID)
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Session-ID", start.SessionID)
	c.Writer.Flush()

	for event := range start.Events {
		var payload streamPayload
		switch event.Type {
		case app.EventSources:
			payload = streamPayload{Type: app.EventSources, Data: event.Sources}
		case app.EventContent:
			payload = streamPayload{Type: app.EventContent, Data: event.Content}
		case app.EventDone:
			payload = streamPayload{Type: app.EventDone}
		case app.EventError:
			payload = streamPayload{Type: app.EventError, Data: "generation failed"}
		default:
			continue
		}

		line, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", line); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	sessions, err := h.chatService.ListSessions(middleware.UserID(c), h.cookieSessionID(c))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		return
	}

	response.OK(c, gin.H{"sessions": sessions})
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := h.chatService.ListMessages(app.ListMessagesInput{
		UserID:    middleware.UserID(c),
		SessionID: c.Param("id"),
		Limit:     limit,
		Cursor:    c.Query("cursor"),
	})
	if err != nil {
		writeChatError(c, err)
		return
	}

	response.OK(c, page)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.chatService.DeleteSession(middleware.UserID(c), sessionID); err != nil {
		writeChatError(c, err)
		return
	}

	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

func writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request")
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "session not found")
	case errors.Is(err, app.ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "session belongs to another user")
	case errors.Is(err, app.ErrUpstream):
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailure, "model provider unavailable")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "chat request failed")
	}
}
