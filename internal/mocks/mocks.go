// Package mocks provides testify mocks for the controller's collaborators.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/models"
)

type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) IssueToken(ctx context.Context, identity, secret string) (string, error) {
	args := m.Called(ctx, identity, secret)
	return args.String(0), args.Error(1)
}

func (m *DirectoryMock) CreateIdentity(ctx context.Context, identity, secret string) error {
	args := m.Called(ctx, identity, secret)
	return args.Error(0)
}

func (m *DirectoryMock) Ping(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *DirectoryMock) ListRooms(ctx context.Context, token string) ([]models.RoomSummary, error) {
	args := m.Called(ctx, token)
	var rooms []models.RoomSummary
	if val := args.Get(0); val != nil {
		rooms = val.([]models.RoomSummary)
	}
	return rooms, args.Error(1)
}

func (m *DirectoryMock) CreateRoom(ctx context.Context, token, name string) (models.RoomSummary, error) {
	args := m.Called(ctx, token, name)
	var room models.RoomSummary
	if val := args.Get(0); val != nil {
		room = val.(models.RoomSummary)
	}
	return room, args.Error(1)
}

func (m *DirectoryMock) LeaveRoom(ctx context.Context, token, room string) error {
	args := m.Called(ctx, token, room)
	return args.Error(0)
}

func (m *DirectoryMock) ListMessages(ctx context.Context, token, room string, skip, limit int) ([]models.Message, error) {
	args := m.Called(ctx, token, room, skip, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *DirectoryMock) Search(ctx context.Context, token, query string) ([]models.Message, error) {
	args := m.Called(ctx, token, query)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *DirectoryMock) ListFriends(ctx context.Context, token string) ([]models.FriendEdge, error) {
	args := m.Called(ctx, token)
	var friends []models.FriendEdge
	if val := args.Get(0); val != nil {
		friends = val.([]models.FriendEdge)
	}
	return friends, args.Error(1)
}

func (m *DirectoryMock) AddFriend(ctx context.Context, token, username string) (models.FriendEdge, error) {
	args := m.Called(ctx, token, username)
	var edge models.FriendEdge
	if val := args.Get(0); val != nil {
		edge = val.(models.FriendEdge)
	}
	return edge, args.Error(1)
}

func (m *DirectoryMock) RemoveFriend(ctx context.Context, token, username string) error {
	args := m.Called(ctx, token, username)
	return args.Error(0)
}

func (m *DirectoryMock) ListFriendRequests(ctx context.Context, token string) ([]models.FriendRequest, error) {
	args := m.Called(ctx, token)
	var reqs []models.FriendRequest
	if val := args.Get(0); val != nil {
		reqs = val.([]models.FriendRequest)
	}
	return reqs, args.Error(1)
}

func (m *DirectoryMock) SendFriendRequest(ctx context.Context, token, toUsername string) error {
	args := m.Called(ctx, token, toUsername)
	return args.Error(0)
}

func (m *DirectoryMock) RespondFriendRequest(ctx context.Context, token string, requestID int, accept bool) error {
	args := m.Called(ctx, token, requestID, accept)
	return args.Error(0)
}

func (m *DirectoryMock) ListRoomInvites(ctx context.Context, token string) ([]models.RoomInvite, error) {
	args := m.Called(ctx, token)
	var invites []models.RoomInvite
	if val := args.Get(0); val != nil {
		invites = val.([]models.RoomInvite)
	}
	return invites, args.Error(1)
}

func (m *DirectoryMock) SendRoomInvite(ctx context.Context, token, room, toUsername string) error {
	args := m.Called(ctx, token, room, toUsername)
	return args.Error(0)
}

func (m *DirectoryMock) RespondRoomInvite(ctx context.Context, token string, inviteID int, accept bool) error {
	args := m.Called(ctx, token, inviteID, accept)
	return args.Error(0)
}

type ChannelMock struct {
	mock.Mock
}

func (m *ChannelMock) Send(content string) error {
	args := m.Called(content)
	return args.Error(0)
}

func (m *ChannelMock) Typing() error {
	args := m.Called()
	return args.Error(0)
}

func (m *ChannelMock) StopTyping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *ChannelMock) Close() {
	m.Called()
}

type CredentialStoreMock struct {
	mock.Mock
}

func (m *CredentialStoreMock) Load() (models.Session, bool, error) {
	args := m.Called()
	var sess models.Session
	if val := args.Get(0); val != nil {
		sess = val.(models.Session)
	}
	return sess, args.Bool(1), args.Error(2)
}

func (m *CredentialStoreMock) Save(sess models.Session) error {
	args := m.Called(sess)
	return args.Error(0)
}

func (m *CredentialStoreMock) SaveLastRoom(room string, joined bool) error {
	args := m.Called(room, joined)
	return args.Error(0)
}

func (m *CredentialStoreMock) Clear() error {
	args := m.Called()
	return args.Error(0)
}
