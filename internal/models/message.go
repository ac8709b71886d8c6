package models

import "time"

// Message is a single chat message as served by the directory API and
// delivered over the live channel. Messages are immutable once delivered.
type Message struct {
	ID        int       `db:"id" json:"id"`
	Room      string    `db:"room" json:"room"`
	Sender    string    `db:"username" json:"username"`
	Content   string    `db:"content" json:"content"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// RoomSummary is a room as listed by the directory API.
type RoomSummary struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
