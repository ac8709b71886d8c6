package directory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/directory"
	"chat-client/internal/fakeserver"
	"chat-client/internal/models"
)

func newFixture(t *testing.T) (*directory.Client, *fakeserver.Server) {
	t.Helper()
	srv := fakeserver.New()
	t.Cleanup(srv.Close)
	return directory.New(srv.URL()), srv
}

func TestIssueToken(t *testing.T) {
	client, srv := newFixture(t)
	srv.SeedUser("alice", "p1")

	token, err := client.IssueToken(context.Background(), "alice", "p1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = client.IssueToken(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, directory.ErrUnauthorized)

	var apiErr *directory.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, "incorrect username or password", apiErr.Detail)
}

func TestCreateIdentityConflict(t *testing.T) {
	client, _ := newFixture(t)

	require.NoError(t, client.CreateIdentity(context.Background(), "alice", "p1"))

	err := client.CreateIdentity(context.Background(), "alice", "p2")
	require.ErrorIs(t, err, directory.ErrConflict)
}

func TestPingDetectsRevokedToken(t *testing.T) {
	client, srv := newFixture(t)
	token := srv.Token("alice")

	require.NoError(t, client.Ping(context.Background(), token))

	srv.RevokeAllTokens()
	err := client.Ping(context.Background(), token)
	require.ErrorIs(t, err, directory.ErrUnauthorized)
}

func TestListRoomsScopedToMembership(t *testing.T) {
	client, srv := newFixture(t)
	srv.SeedRoom("general", "alice", "bob")
	srv.SeedRoom("private_bob_carol", "bob", "carol")

	rooms, err := client.ListRooms(context.Background(), srv.Token("alice"))
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "general", rooms[0].Name)
}

func TestListMessagesPagination(t *testing.T) {
	client, srv := newFixture(t)
	srv.SeedRoom("general", "alice")
	for _, content := range []string{"one", "two", "three", "four"} {
		srv.SeedMessage("general", "bob", content)
	}
	srv.SeedMessage("other", "bob", "elsewhere")

	msgs, err := client.ListMessages(context.Background(), srv.Token("alice"), "general", 1, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)

	// A negative skip reads from the start instead of failing.
	msgs, err = client.ListMessages(context.Background(), srv.Token("alice"), "general", -3, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "one", msgs[0].Content)
}

func TestSearch(t *testing.T) {
	client, srv := newFixture(t)
	srv.SeedMessage("general", "bob", "deploy is Done")
	srv.SeedMessage("general", "bob", "lunch?")

	msgs, err := client.Search(context.Background(), srv.Token("alice"), "done")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "deploy is Done", msgs[0].Content)

	// No matches is an empty result, not an error.
	msgs, err = client.Search(context.Background(), srv.Token("alice"), "nothing here")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestLeaveUnknownRoom(t *testing.T) {
	client, srv := newFixture(t)

	err := client.LeaveRoom(context.Background(), srv.Token("alice"), "ghost")
	require.ErrorIs(t, err, directory.ErrNotFound)
}

func TestFriendRequestFlow(t *testing.T) {
	client, srv := newFixture(t)
	srv.SeedUser("alice", "p1")
	srv.SeedUser("bob", "p2")
	ctx := context.Background()

	require.NoError(t, client.SendFriendRequest(ctx, srv.Token("bob"), "alice"))

	reqs, err := client.ListFriendRequests(ctx, srv.Token("alice"))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "bob", reqs[0].FromUsername)

	require.NoError(t, client.RespondFriendRequest(ctx, srv.Token("alice"), reqs[0].ID, true))

	friends, err := client.ListFriends(ctx, srv.Token("alice"))
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, models.FriendEdge{ID: 1, Username: "bob", RoomName: "private_alice_bob"}, friends[0])

	// Accepting is symmetric and the derived private room admits both sides.
	rooms, err := client.ListRooms(ctx, srv.Token("bob"))
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "private_alice_bob", rooms[0].Name)
}

func TestRoomInviteFlow(t *testing.T) {
	client, srv := newFixture(t)
	srv.SeedUser("alice", "p1")
	srv.SeedUser("bob", "p2")
	ctx := context.Background()

	room, err := client.CreateRoom(ctx, srv.Token("alice"), "team")
	require.NoError(t, err)
	assert.Equal(t, "team", room.Name)

	require.NoError(t, client.SendRoomInvite(ctx, srv.Token("alice"), "team", "bob"))

	invites, err := client.ListRoomInvites(ctx, srv.Token("bob"))
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, "team", invites[0].RoomName)
	assert.Equal(t, "alice", invites[0].FromUsername)

	require.NoError(t, client.RespondRoomInvite(ctx, srv.Token("bob"), invites[0].ID, true))

	rooms, err := client.ListRooms(ctx, srv.Token("bob"))
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "team", rooms[0].Name)
}

func TestRespondUnknownInvite(t *testing.T) {
	client, srv := newFixture(t)
	srv.SeedUser("bob", "p2")

	err := client.RespondRoomInvite(context.Background(), srv.Token("bob"), 99, false)
	require.ErrorIs(t, err, directory.ErrNotFound)
	assert.False(t, errors.Is(err, directory.ErrUnauthorized))
}
