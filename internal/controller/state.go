package controller

// State is the sync controller's lifecycle state.
type State int

const (
	StateLoggedOut State = iota
	StateAuthenticating
	StateLobby
	StateRoomActive
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateAuthenticating:
		return "authenticating"
	case StateLobby:
		return "lobby"
	case StateRoomActive:
		return "room_active"
	default:
		return "unknown"
	}
}
