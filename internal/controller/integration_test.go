package controller_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/controller"
	"chat-client/internal/credstore"
	"chat-client/internal/directory"
	"chat-client/internal/fakeserver"
	"chat-client/internal/live"
	"chat-client/internal/models"
)

// fixture wires the real client stack against one fake service instance.
type fixture struct {
	srv   *fakeserver.Server
	creds *credstore.Store
	dir   *directory.Client
}

func newIntegrationFixture(t *testing.T) *fixture {
	t.Helper()
	srv := fakeserver.New()
	t.Cleanup(srv.Close)

	creds, err := credstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { creds.Close() })

	return &fixture{srv: srv, creds: creds, dir: directory.New(srv.URL())}
}

func (f *fixture) controller(t *testing.T, opts controller.Options) *controller.Controller {
	t.Helper()
	dial := func(ctx context.Context, token, identity, room string, handlers live.Handlers) (controller.Channel, error) {
		return live.Dial(ctx, f.srv.WSURL(), token, identity, room, handlers)
	}
	c := controller.New(f.dir, f.creds, dial, opts)
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, c *controller.Controller, cond func(controller.Snapshot) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(c.Snapshot())
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFullSessionLifecycle(t *testing.T) {
	f := newIntegrationFixture(t)
	f.srv.SeedUser("alice", "p1")
	f.srv.SeedRoom("general", "alice", "bob")
	f.srv.SeedMessage("general", "bob", "earlier")
	ctx := context.Background()

	c := f.controller(t, controller.Options{})

	require.NoError(t, c.Login(ctx, "alice", "p1"))
	snap := c.Snapshot()
	require.Equal(t, controller.StateLobby, snap.State)
	require.Len(t, snap.Rooms, 1)
	assert.Equal(t, "general", snap.Rooms[0].Name)

	require.NoError(t, c.EnterRoom(ctx, "general"))
	snap = c.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "earlier", snap.Messages[0].Content)

	// Outbound messages come back over the live channel with server ids.
	require.NoError(t, c.SendMessage("hello"))
	waitFor(t, c, func(s controller.Snapshot) bool {
		return len(s.Messages) == 2 && s.Messages[1].Content == "hello"
	})
	assert.Equal(t, "alice", c.Snapshot().Messages[1].Sender)

	// A message from elsewhere appends in id order without duplicates.
	pushed := f.srv.PushMessage("general", "bob", "hi back")
	waitFor(t, c, func(s controller.Snapshot) bool {
		return len(s.Messages) == 3 && s.Messages[2].ID == pushed.ID
	})

	require.NoError(t, c.Logout())
	assert.Equal(t, controller.StateLoggedOut, c.State())
	assert.ErrorIs(t, c.SendMessage("after logout"), controller.ErrNoActiveRoom)
}

func TestSessionResumesAcrossRestart(t *testing.T) {
	f := newIntegrationFixture(t)
	f.srv.SeedUser("alice", "p1")
	f.srv.SeedRoom("general", "alice")
	ctx := context.Background()

	first := f.controller(t, controller.Options{})
	require.NoError(t, first.Login(ctx, "alice", "p1"))
	require.NoError(t, first.EnterRoom(ctx, "general"))
	first.Close()

	// A fresh controller over the same credential store lands back in the
	// room.
	second := f.controller(t, controller.Options{})
	require.NoError(t, second.Start(ctx))
	snap := second.Snapshot()
	assert.Equal(t, controller.StateRoomActive, snap.State)
	assert.Equal(t, "general", snap.ActiveRoom)
	assert.Equal(t, "alice", snap.Identity)
}

func TestRevokedTokenForcesLogout(t *testing.T) {
	f := newIntegrationFixture(t)
	f.srv.SeedUser("alice", "p1")
	f.srv.SeedRoom("general", "alice")
	ctx := context.Background()

	c := f.controller(t, controller.Options{})
	require.NoError(t, c.Login(ctx, "alice", "p1"))

	f.srv.RevokeAllTokens()

	err := c.RefreshDirectory(ctx)
	require.ErrorIs(t, err, directory.ErrUnauthorized)
	assert.Equal(t, controller.StateLoggedOut, c.State())

	// The rejected credential is gone, so a restart stays logged out.
	fresh := f.controller(t, controller.Options{})
	require.NoError(t, fresh.Start(ctx))
	assert.Equal(t, controller.StateLoggedOut, fresh.State())
}

func TestTypingVisibleToRoomPeers(t *testing.T) {
	f := newIntegrationFixture(t)
	f.srv.SeedUser("alice", "p1")
	f.srv.SeedUser("bob", "p2")
	f.srv.SeedRoom("general", "alice", "bob")
	ctx := context.Background()

	alice := f.controller(t, controller.Options{})
	require.NoError(t, alice.Login(ctx, "alice", "p1"))
	require.NoError(t, alice.EnterRoom(ctx, "general"))

	bob := f.controller(t, controller.Options{})
	require.NoError(t, bob.Login(ctx, "bob", "p2"))
	require.NoError(t, bob.EnterRoom(ctx, "general"))

	require.NoError(t, bob.SetTyping(true))
	waitFor(t, alice, func(s controller.Snapshot) bool {
		return len(s.Typing) == 1 && s.Typing[0] == "bob"
	})

	require.NoError(t, bob.SetTyping(false))
	waitFor(t, alice, func(s controller.Snapshot) bool {
		return len(s.Typing) == 0
	})

	// Presence reflects both connected members.
	waitFor(t, alice, func(s controller.Snapshot) bool {
		return len(s.Presence) == 2
	})
}

func TestBackgroundNotificationsAcrossRooms(t *testing.T) {
	f := newIntegrationFixture(t)
	f.srv.SeedUser("alice", "p1")
	f.srv.SeedRoom("general", "alice")
	f.srv.SeedRoom("team", "alice")
	ctx := context.Background()

	c := f.controller(t, controller.Options{Notifications: true})

	notified := make(chan string, 4)
	c.OnNotification(func(msg models.Message) {
		notified <- msg.Room
	})

	require.NoError(t, c.Login(ctx, "alice", "p1"))
	require.NoError(t, c.EnterRoom(ctx, "general"))

	f.srv.PushMessage("team", "bob", "ping")
	select {
	case room := <-notified:
		assert.Equal(t, "team", room)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}
