package models

// FriendEdge is an accepted friendship as seen by the current user. The
// directory derives a private room for each pair.
type FriendEdge struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	RoomName string `json:"room_name"`
}

// FriendRequest is a pending incoming friend request.
type FriendRequest struct {
	ID           int    `json:"id"`
	FromUsername string `json:"from_username"`
	Status       string `json:"status"`
}

// RoomInvite is a pending invitation to join a group room.
type RoomInvite struct {
	ID           int    `json:"id"`
	RoomName     string `json:"room_name"`
	FromUsername string `json:"from_username"`
	Status       string `json:"status"`
}
