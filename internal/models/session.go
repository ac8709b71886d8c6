package models

import "time"

// Session is the authenticated identity plus bearer credential for this
// client instance. Exactly one session is active at a time.
type Session struct {
	Identity   string    `db:"identity" json:"identity"`
	Token      string    `db:"token" json:"token"`
	LastRoom   string    `db:"last_room" json:"last_room"`
	Joined     bool      `db:"joined" json:"joined"`
	InstanceID string    `db:"instance_id" json:"instance_id"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// TokenResponse is the body returned by the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
