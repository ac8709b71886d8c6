package fakeserver

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-client/internal/models"
)

func (s *Server) handleWS(c *gin.Context) {
	token := c.Query("token")
	username, err := s.verifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	cl := &client{conn: conn, username: username}
	s.mu.Lock()
	s.clients[cl] = true
	s.mu.Unlock()

	go s.readLoop(cl)
}

func (s *Server) readLoop(cl *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, cl)
		room := cl.room
		var targets []*client
		if room != "" {
			targets = s.roomClientsLocked(room)
		}
		users := s.presenceLocked(room)
		s.mu.Unlock()

		cl.conn.Close()
		if room != "" {
			s.broadcast(targets, models.EventRoomUsers, users)
		}
	}()

	for {
		var envelope models.LiveEvent
		if err := cl.conn.ReadJSON(&envelope); err != nil {
			return
		}
		s.handleEvent(cl, envelope)
	}
}

func (s *Server) handleEvent(cl *client, envelope models.LiveEvent) {
	switch envelope.Event {
	case models.EventJoinRoom:
		var payload models.JoinRoomPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		s.mu.Lock()
		cl.room = payload.Room
		targets := s.roomClientsLocked(payload.Room)
		users := s.presenceLocked(payload.Room)
		s.mu.Unlock()
		s.broadcast(targets, models.EventRoomUsers, users)

	case models.EventSendMessage:
		var payload models.SendMessagePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		s.mu.Lock()
		room := cl.room
		if room == "" {
			s.mu.Unlock()
			return
		}
		msg := s.appendMessageLocked(room, cl.username, payload.Content)
		targets := s.targetsLocked(room)
		s.mu.Unlock()
		s.broadcast(targets, models.EventReceiveMessage, msg)

	case models.EventTyping, models.EventStopTyping:
		var notice models.TypingNotice
		if err := json.Unmarshal(envelope.Data, &notice); err != nil {
			return
		}
		notice.Username = cl.username
		s.mu.Lock()
		targets := s.roomClientsLocked(cl.room)
		s.mu.Unlock()
		s.broadcast(targets, envelope.Event, notice)
	}
}

// roomClientsLocked returns connections joined to the given room.
func (s *Server) roomClientsLocked(room string) []*client {
	out := make([]*client, 0)
	for cl := range s.clients {
		if cl.room == room && room != "" {
			out = append(out, cl)
		}
	}
	return out
}

// targetsLocked returns connections that should see a message for room:
// everyone joined to it, plus session-scoped connections whose identity is a
// member.
func (s *Server) targetsLocked(room string) []*client {
	out := make([]*client, 0)
	for cl := range s.clients {
		if cl.room == room {
			out = append(out, cl)
			continue
		}
		if cl.room == "" && s.members[room][cl.username] {
			out = append(out, cl)
		}
	}
	return out
}

// presenceLocked is the full replacement snapshot of identities in a room.
func (s *Server) presenceLocked(room string) []string {
	seen := make(map[string]bool)
	users := make([]string, 0)
	for cl := range s.clients {
		if cl.room == room && room != "" && !seen[cl.username] {
			seen[cl.username] = true
			users = append(users, cl.username)
		}
	}
	return users
}

func (s *Server) broadcast(targets []*client, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	envelope := models.LiveEvent{Event: event, Data: data}
	for _, cl := range targets {
		cl.writeMu.Lock()
		_ = cl.conn.WriteJSON(envelope)
		cl.writeMu.Unlock()
	}
}
