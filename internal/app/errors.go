package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSessionNotFound   = errors.New("session not found")
	ErrForbidden         = errors.New("not authorized to access this session")
	ErrEmailExists       = errors.New("email already registered")
	ErrInvalidCredential = errors.New("incorrect email or password")
	ErrAccountInactive   = errors.New("user account is inactive")

	// ErrUpstream wraps vector index, embedding, and LLM provider
	// failures. They are never retried here; callers surface them.
	ErrUpstream = errors.New("upstream provider failure")
)
