// Package live maintains the real-time connection to the chat service. A
// channel is scoped either to a single room or to the whole session (the
// background notification variant); the sync controller guarantees at most
// one room-scoped channel is open at a time.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// ErrChannelClosed is returned by outbound operations after Close.
var ErrChannelClosed = errors.New("live channel closed")

// Handlers receives decoded inbound events. Nil handlers are skipped. All
// callbacks run on the channel's read pump goroutine.
type Handlers struct {
	Connected     func()
	Disconnected  func(reason string)
	Message       func(models.Message)
	Presence      func(identities []string)
	TypingStarted func(identity string)
	TypingStopped func(identity string)
}

// Channel is one open live connection.
type Channel struct {
	conn     *websocket.Conn
	scope    string
	room     string
	identity string
	handlers Handlers

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	decOnce   sync.Once
	done      chan struct{}
}

// Dial opens a live channel. A non-empty room yields a room-scoped channel
// that joins the room immediately after connecting; an empty room yields the
// session-scoped background subscription.
func Dial(ctx context.Context, wsURL, token, identity, room string, handlers Handlers) (*Channel, error) {
	_, span := otel.Tracer("chat-client/live").Start(ctx, "live.dial")
	defer span.End()

	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse live url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial live channel: %w", err)
	}

	ch := &Channel{
		conn:     conn,
		scope:    scopeFor(room),
		room:     room,
		identity: identity,
		handlers: handlers,
		done:     make(chan struct{}),
	}

	if room != "" {
		if err := ch.emit(models.EventJoinRoom, models.JoinRoomPayload{Room: room}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("join room: %w", err)
		}
	}

	observability.IncLiveActive(ch.scope)
	if handlers.Connected != nil {
		handlers.Connected()
	}

	go ch.readPump()
	return ch, nil
}

func scopeFor(room string) string {
	if room == "" {
		return "session"
	}
	return "room"
}

// Room returns the room this channel is scoped to, empty for the background
// channel.
func (c *Channel) Room() string {
	return c.room
}

// Send delivers a message to the active room. Fire-and-forget: a dropped
// connection loses the in-flight send.
func (c *Channel) Send(content string) error {
	return c.emit(models.EventSendMessage, models.SendMessagePayload{Content: content})
}

// Typing announces that the local identity is composing.
func (c *Channel) Typing() error {
	return c.emit(models.EventTyping, models.TypingNotice{Room: c.room, Username: c.identity})
}

// StopTyping clears the local identity's composing state.
func (c *Channel) StopTyping() error {
	return c.emit(models.EventStopTyping, models.TypingNotice{Room: c.room, Username: c.identity})
}

// Close tears down the connection. Idempotent; no Disconnected callback
// fires for an explicit close.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.conn.Close()
		c.decActive()
		<-c.done
	})
}

// decActive releases the active-connection gauge slot exactly once, whether
// the channel is closed explicitly or dropped by the server.
func (c *Channel) decActive() {
	c.decOnce.Do(func() { observability.DecLiveActive(c.scope) })
}

func (c *Channel) emit(event string, payload interface{}) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	envelope := models.LiveEvent{Event: event, Data: data}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(envelope); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	observability.IncLiveEvent(c.scope, event)
	return nil
}

func (c *Channel) readPump() {
	defer close(c.done)
	for {
		var envelope models.LiveEvent
		if err := c.conn.ReadJSON(&envelope); err != nil {
			if c.closed.Load() {
				return
			}
			reason := err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("live channel read error: %v", err)
			}
			observability.IncLiveEvent(c.scope, "disconnect")
			c.decActive()
			if c.handlers.Disconnected != nil {
				c.handlers.Disconnected(reason)
			}
			return
		}
		c.dispatch(envelope)
	}
}

func (c *Channel) dispatch(envelope models.LiveEvent) {
	observability.IncLiveEvent(c.scope, envelope.Event)

	switch envelope.Event {
	case models.EventReceiveMessage:
		var msg models.Message
		if err := json.Unmarshal(envelope.Data, &msg); err != nil {
			log.Printf("live channel: bad message payload: %v", err)
			return
		}
		if c.handlers.Message != nil {
			c.handlers.Message(msg)
		}
	case models.EventRoomUsers:
		var identities []string
		if err := json.Unmarshal(envelope.Data, &identities); err != nil {
			log.Printf("live channel: bad presence payload: %v", err)
			return
		}
		if c.handlers.Presence != nil {
			c.handlers.Presence(identities)
		}
	case models.EventTyping:
		c.dispatchTyping(envelope.Data, c.handlers.TypingStarted)
	case models.EventStopTyping:
		c.dispatchTyping(envelope.Data, c.handlers.TypingStopped)
	default:
		log.Printf("live channel: ignoring unknown event %q", envelope.Event)
	}
}

func (c *Channel) dispatchTyping(data json.RawMessage, handler func(string)) {
	var notice models.TypingNotice
	if err := json.Unmarshal(data, &notice); err != nil {
		log.Printf("live channel: bad typing payload: %v", err)
		return
	}
	if handler != nil {
		handler(notice.Username)
	}
}
