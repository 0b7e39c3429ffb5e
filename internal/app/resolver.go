package app

import (
	"fmt"

	"github.com/google/uuid"

	"finchat/internal/model"
)

// SessionResolver decides which session an incoming chat request
// operates on, creating the session record when the chosen identifier
// has never been seen.
type SessionResolver struct {
	sessions SessionStore
}

func NewSessionResolver(sessions SessionStore) *SessionResolver {
	return &SessionResolver{sessions: sessions}
}

// Resolution is the outcome of resolving a request's session identity.
type Resolution struct {
	Session *model.Session
	// Created is true when this request minted the session record.
	Created bool
	// SetCookie is true when the caller must issue a fresh anonymous
	// session cookie carrying Session.ID.
	SetCookie bool
}

// Resolve picks the session for a request. Priority:
//
//  1. Authenticated callers use the client-supplied id, else a fresh
//     one. The anonymous cookie id is always ignored for them, so a
//     stale cookie can never pull an authenticated caller into another
//     identity's session.
//  2. Anonymous callers use client-supplied id, else cookie id, else a
//     fresh one.
//
// A fresh id creates the record (owner = caller or nil); an existing
// record is subject to the ownership check. Only anonymous callers
// creating a session get a cookie.
func (r *SessionResolver) Resolve(userID, requestSessionID, cookieSessionID string) (*Resolution, error) {
	sessionID := requestSessionID
	if sessionID == "" && userID == "" {
		sessionID = cookieSessionID
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	session, err := r.sessions.GetByID(sessionID)
	if err != nil {
		return nil, err
	}

	if session == nil {
		session = &model.Session{ID: sessionID}
		if userID != "" {
			owner := userID
			session.UserID = &owner
		}
		if err := r.sessions.Create(session); err != nil {
			return nil, fmt.Errorf("create resolved session failed: %w", err)
		}
		return &Resolution{
			Session:   session,
			Created:   true,
			SetCookie: userID == "",
		}, nil
	}

	if err := AuthorizeSessionAccess(session, userID); err != nil {
		return nil, err
	}
	return &Resolution{Session: session}, nil
}

// AuthorizeSessionAccess enforces the ownership rule shared by chat,
// pagination, listing, and deletion: authenticated callers reach their
// own sessions and unclaimed ones; anonymous callers reach unclaimed
// sessions only.
func AuthorizeSessionAccess(session *model.Session, userID string) error {
	if !session.Owned() {
		return nil
	}
	if userID == "" || !session.OwnedBy(userID) {
		return ErrForbidden
	}
	return nil
}

// PromoteAnonymous transfers an anonymous session to a user after
// login or registration. Ownership transfer is explicit, never a side
// effect of Resolve. Idempotent: promoting a missing or already-owned
// session succeeds without effect.
func (r *SessionResolver) PromoteAnonymous(sessionID, userID string) error {
	if sessionID == "" || userID == "" {
		return ErrInvalidInput
	}
	return r.sessions.Promote(sessionID, userID)
}
