package credstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
)

func TestLoadEmptyStore(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(models.Session{Identity: "alice", Token: "tok1", LastRoom: "general", Joined: true}))

	sess, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", sess.Identity)
	assert.Equal(t, "tok1", sess.Token)
	assert.Equal(t, "general", sess.LastRoom)
	assert.True(t, sess.Joined)
	assert.NotEmpty(t, sess.InstanceID, "an instance id is minted on first save")
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	again, ok, err := reopened.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sess.Identity, again.Identity)
	assert.Equal(t, sess.InstanceID, again.InstanceID)
}

func TestInstanceIDStableAcrossLogins(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(models.Session{Identity: "alice", Token: "tok1"}))
	first, _, err := store.Load()
	require.NoError(t, err)

	// A later login with a blank instance id keeps the minted one.
	require.NoError(t, store.Save(models.Session{Identity: "bob", Token: "tok2"}))
	second, _, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "bob", second.Identity)
	assert.Equal(t, first.InstanceID, second.InstanceID)
}

func TestSaveLastRoom(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.Error(t, store.SaveLastRoom("general", true), "no session to update yet")

	require.NoError(t, store.Save(models.Session{Identity: "alice", Token: "tok1"}))
	require.NoError(t, store.SaveLastRoom("general", true))

	sess, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "general", sess.LastRoom)
	assert.True(t, sess.Joined)
	assert.Equal(t, "tok1", sess.Token, "credential is untouched")
}

func TestClear(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(models.Session{Identity: "alice", Token: "tok1"}))
	require.NoError(t, store.Clear())

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing an empty store is fine.
	require.NoError(t, store.Clear())
}
