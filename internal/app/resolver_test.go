package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat/internal/model"
)

func TestResolveAnonymous(t *testing.T) {
	t.Run("no identifiers mints a fresh session with cookie", func(t *testing.T) {
		store := newFakeSessionStore()
		resolver := NewSessionResolver(store)

		res, err := resolver.Resolve("", "", "")
		require.NoError(t, err)

		assert.True(t, res.Created)
		assert.True(t, res.SetCookie)
		assert.NotEmpty(t, res.Session.ID)
		assert.Nil(t, res.Session.UserID)

		stored, err := store.GetByID(res.Session.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
	})

	t.Run("cookie id reuses the existing session without a new cookie", func(t *testing.T) {
		store := newFakeSessionStore()
		require.NoError(t, store.Create(&model.Session{ID: "cookie-session"}))
		resolver := NewSessionResolver(store)

		res, err := resolver.Resolve("", "", "cookie-session")
		require.NoError(t, err)

		assert.False(t, res.Created)
		assert.False(t, res.SetCookie)
		assert.Equal(t, "cookie-session", res.Session.ID)
	})

	t.Run("request id takes precedence over cookie id", func(t *testing.T) {
		store := newFakeSessionStore()
		require.NoError(t, store.Create(&model.Session{ID: "from-request"}))
		require.NoError(t, store.Create(&model.Session{ID: "from-cookie"}))
		resolver := NewSessionResolver(store)

		res, err := resolver.Resolve("", "from-request", "from-cookie")
		require.NoError(t, err)
		assert.Equal(t, "from-request", res.Session.ID)
	})

	t.Run("unseen cookie id creates the record under that id", func(t *testing.T) {
		store := newFakeSessionStore()
		resolver := NewSessionResolver(store)

		res, err := resolver.Resolve("", "", "never-seen")
		require.NoError(t, err)
		assert.Equal(t, "never-seen", res.Session.ID)
		assert.True(t, res.Created)
		assert.True(t, res.SetCookie)
	})

	t.Run("anonymous caller is rejected from an owned session", func(t *testing.T) {
		store := newFakeSessionStore()
		owner := "user-1"
		require.NoError(t, store.Create(&model.Session{ID: "owned", UserID: &owner}))
		resolver := NewSessionResolver(store)

		_, err := resolver.Resolve("", "owned", "")
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestResolveAuthenticated(t *testing.T) {
	t.Run("stale anonymous cookie is ignored", func(t *testing.T) {
		store := newFakeSessionStore()
		require.NoError(t, store.Create(&model.Session{ID: "anon-cookie"}))
		resolver := NewSessionResolver(store)

		res, err := resolver.Resolve("user-1", "", "anon-cookie")
		require.NoError(t, err)

		assert.NotEqual(t, "anon-cookie", res.Session.ID)
		assert.True(t, res.Created)
		assert.False(t, res.SetCookie)
		require.NotNil(t, res.Session.UserID)
		assert.Equal(t, "user-1", *res.Session.UserID)
	})

	t.Run("own session resolves", func(t *testing.T) {
		store := newFakeSessionStore()
		owner := "user-1"
		require.NoError(t, store.Create(&model.Session{ID: "mine", UserID: &owner}))
		resolver := NewSessionResolver(store)

		res, err := resolver.Resolve("user-1", "mine", "")
		require.NoError(t, err)
		assert.Equal(t, "mine", res.Session.ID)
		assert.False(t, res.SetCookie)
	})

	t.Run("another user's session is forbidden", func(t *testing.T) {
		store := newFakeSessionStore()
		owner := "user-1"
		require.NoError(t, store.Create(&model.Session{ID: "theirs", UserID: &owner}))
		resolver := NewSessionResolver(store)

		_, err := resolver.Resolve("user-2", "theirs", "")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unclaimed session is reachable without ownership transfer", func(t *testing.T) {
		store := newFakeSessionStore()
		require.NoError(t, store.Create(&model.Session{ID: "unclaimed"}))
		resolver := NewSessionResolver(store)

		res, err := resolver.Resolve("user-1", "unclaimed", "")
		require.NoError(t, err)
		assert.Nil(t, res.Session.UserID)

		stored, err := store.GetByID("unclaimed")
		require.NoError(t, err)
		assert.Nil(t, stored.UserID)
	})
}

func TestPromoteAnonymous(t *testing.T) {
	store := newFakeSessionStore()
	require.NoError(t, store.Create(&model.Session{ID: "anon"}))
	resolver := NewSessionResolver(store)

	require.NoError(t, resolver.PromoteAnonymous("anon", "user-1"))
	stored, err := store.GetByID("anon")
	require.NoError(t, err)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, "user-1", *stored.UserID)

	t.Run("re-promotion keeps the original owner", func(t *testing.T) {
		require.NoError(t, resolver.PromoteAnonymous("anon", "user-2"))
		stored, err := store.GetByID("anon")
		require.NoError(t, err)
		assert.Equal(t, "user-1", *stored.UserID)
	})

	t.Run("empty arguments are rejected", func(t *testing.T) {
		assert.ErrorIs(t, resolver.PromoteAnonymous("", "user-1"), ErrInvalidInput)
		assert.ErrorIs(t, resolver.PromoteAnonymous("anon", ""), ErrInvalidInput)
	})
}
