package models

import "encoding/json"

// Live channel event names. The server pushes receive_message, room_users,
// typing and stop_typing; the client emits send_message, typing, stop_typing
// and join_room.
const (
	EventReceiveMessage = "receive_message"
	EventRoomUsers      = "room_users"
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
	EventSendMessage    = "send_message"
	EventJoinRoom       = "join_room"
)

// LiveEvent is the JSON envelope carried over the live channel in both
// directions. Data is decoded per event name.
type LiveEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TypingNotice is the payload of typing and stop_typing events.
type TypingNotice struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// SendMessagePayload is the payload of a client-emitted send_message event.
type SendMessagePayload struct {
	Content string `json:"content"`
}

// JoinRoomPayload is the payload of a client-emitted join_room event.
type JoinRoomPayload struct {
	Room string `json:"room"`
}
