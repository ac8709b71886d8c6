// Package controller reconciles REST-fetched directory state with the live
// event stream. It owns session lifecycle, room membership, and the local
// message, presence and typing state; everything else reads it through
// snapshots.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"chat-client/internal/directory"
	"chat-client/internal/live"
	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// Controller-level sentinel errors.
var (
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrAlreadyActive = errors.New("already logged in")
	ErrNoActiveRoom  = errors.New("no active room")
)

// Directory is the REST surface the controller drives.
type Directory interface {
	IssueToken(ctx context.Context, identity, secret string) (string, error)
	CreateIdentity(ctx context.Context, identity, secret string) error
	Ping(ctx context.Context, token string) error
	ListRooms(ctx context.Context, token string) ([]models.RoomSummary, error)
	CreateRoom(ctx context.Context, token, name string) (models.RoomSummary, error)
	LeaveRoom(ctx context.Context, token, room string) error
	ListMessages(ctx context.Context, token, room string, skip, limit int) ([]models.Message, error)
	Search(ctx context.Context, token, query string) ([]models.Message, error)
	ListFriends(ctx context.Context, token string) ([]models.FriendEdge, error)
	AddFriend(ctx context.Context, token, username string) (models.FriendEdge, error)
	RemoveFriend(ctx context.Context, token, username string) error
	ListFriendRequests(ctx context.Context, token string) ([]models.FriendRequest, error)
	SendFriendRequest(ctx context.Context, token, toUsername string) error
	RespondFriendRequest(ctx context.Context, token string, requestID int, accept bool) error
	ListRoomInvites(ctx context.Context, token string) ([]models.RoomInvite, error)
	SendRoomInvite(ctx context.Context, token, room, toUsername string) error
	RespondRoomInvite(ctx context.Context, token string, inviteID int, accept bool) error
}

// Channel is an open live connection as seen by the controller.
type Channel interface {
	Send(content string) error
	Typing() error
	StopTyping() error
	Close()
}

// CredentialStore persists the session across restarts.
type CredentialStore interface {
	Load() (models.Session, bool, error)
	Save(models.Session) error
	SaveLastRoom(room string, joined bool) error
	Clear() error
}

// Dialer opens a live channel. An empty room means the session-scoped
// background subscription.
type Dialer func(ctx context.Context, token, identity, room string, handlers live.Handlers) (Channel, error)

// Options tune controller behavior.
type Options struct {
	// HistoryPageSize bounds the history fetch on room entry.
	HistoryPageSize int
	// TypingTTL is how long a typing notice lives without a refresh.
	TypingTTL time.Duration
	// Notifications opens the background channel in the lobby.
	Notifications bool
}

// Snapshot is a render-only copy of controller state.
type Snapshot struct {
	State          State
	Identity       string
	ActiveRoom     string
	Rooms          []models.RoomSummary
	Friends        []models.FriendEdge
	FriendRequests []models.FriendRequest
	RoomInvites    []models.RoomInvite
	Messages       []models.Message
	Presence       []string
	Typing         []string
}

// Controller is the sync controller. All exported methods are safe for
// concurrent use; live channel callbacks are serialized through the same
// mutex as the operations.
type Controller struct {
	dir   Directory
	creds CredentialStore
	dial  Dialer
	opts  Options
	now   func() time.Time

	mu       sync.Mutex
	state    State
	session  models.Session
	rooms    []models.RoomSummary
	friends  []models.FriendEdge
	requests []models.FriendRequest
	invites  []models.RoomInvite

	activeRoom   string
	roomGen      uint64
	historyReady bool
	pending      []models.Message
	messages     []models.Message
	seen         map[int]struct{}
	presence     []string
	typing       map[string]time.Time

	roomChannel       Channel
	backgroundChannel Channel

	onChange func(Snapshot)
	onNotify func(models.Message)
}

// New builds a Controller. dial must not be nil; onChange/onNotify are
// optional and set before Start.
func New(dir Directory, creds CredentialStore, dial Dialer, opts Options) *Controller {
	if opts.HistoryPageSize <= 0 {
		opts.HistoryPageSize = 100
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = 5 * time.Second
	}
	return &Controller{
		dir:    dir,
		creds:  creds,
		dial:   dial,
		opts:   opts,
		now:    time.Now,
		state:  StateLoggedOut,
		seen:   make(map[int]struct{}),
		typing: make(map[string]time.Time),
	}
}

// OnChange registers the listener invoked after every state change. The
// listener runs with the controller lock held and must not call back in.
func (c *Controller) OnChange(fn func(Snapshot)) { c.onChange = fn }

// OnNotification registers the callback for background-channel messages
// outside the active room.
func (c *Controller) OnNotification(fn func(models.Message)) { c.onNotify = fn }

// Start loads any persisted credential, probes its validity, and resumes the
// previous lobby/room state. A rejected credential is cleared silently.
func (c *Controller) Start(ctx context.Context) error {
	sess, ok, err := c.creds.Load()
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if !ok {
		return nil
	}

	if err := c.dir.Ping(ctx, sess.Token); err != nil {
		if errors.Is(err, directory.ErrUnauthorized) {
			if cerr := c.creds.Clear(); cerr != nil {
				log.Printf("clear rejected credential: %v", cerr)
			}
			return nil
		}
		return fmt.Errorf("probe credential: %w", err)
	}

	if err := c.enterLobby(ctx, sess); err != nil {
		return err
	}

	if sess.LastRoom != "" && sess.Joined {
		if err := c.EnterRoom(ctx, sess.LastRoom); err != nil {
			log.Printf("resume room %q: %v", sess.LastRoom, err)
		}
	}
	return nil
}

// Login exchanges credentials for a token and enters the lobby.
func (c *Controller) Login(ctx context.Context, identity, secret string) error {
	c.mu.Lock()
	if c.state != StateLoggedOut {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.setStateLocked(StateAuthenticating)
	c.mu.Unlock()

	token, err := c.dir.IssueToken(ctx, identity, secret)
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateLoggedOut)
		c.mu.Unlock()
		return fmt.Errorf("login: %w", err)
	}

	sess := models.Session{Identity: identity, Token: token}
	if err := c.creds.Save(sess); err != nil {
		log.Printf("persist credential: %v", err)
	}

	return c.enterLobby(ctx, sess)
}

// Signup registers a new identity and logs in with it.
func (c *Controller) Signup(ctx context.Context, identity, secret string) error {
	if err := c.dir.CreateIdentity(ctx, identity, secret); err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	return c.Login(ctx, identity, secret)
}

// Logout clears the credential and tears down all channels and cached state.
func (c *Controller) Logout() error {
	c.forceLoggedOut()
	if err := c.creds.Clear(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// enterLobby installs the session, fetches the directory lists once, and
// opens the background channel when enabled.
func (c *Controller) enterLobby(ctx context.Context, sess models.Session) error {
	c.mu.Lock()
	c.session = sess
	c.setStateLocked(StateLobby)
	c.notifyLocked()
	c.mu.Unlock()

	if err := c.RefreshDirectory(ctx); err != nil {
		return err
	}

	if c.opts.Notifications {
		ch, err := c.dial(ctx, sess.Token, sess.Identity, "", c.backgroundHandlers())
		if err != nil {
			log.Printf("open background channel: %v", err)
		} else {
			c.mu.Lock()
			if c.state == StateLoggedOut {
				c.mu.Unlock()
				ch.Close()
				return nil
			}
			c.backgroundChannel = ch
			c.mu.Unlock()
		}
	}
	return nil
}

// RefreshDirectory re-fetches rooms, friends, requests and invites. Fetched
// once per lobby entry and after each mutating directory action; transient
// failures keep the previous lists.
func (c *Controller) RefreshDirectory(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateLoggedOut || c.state == StateAuthenticating {
		c.mu.Unlock()
		return ErrNotLoggedIn
	}
	token := c.session.Token
	c.mu.Unlock()

	rooms, err := c.dir.ListRooms(ctx, token)
	if err != nil {
		if c.expire(err) {
			return err
		}
		log.Printf("list rooms: %v", err)
	}
	friends, err := c.dir.ListFriends(ctx, token)
	if err != nil {
		if c.expire(err) {
			return err
		}
		log.Printf("list friends: %v", err)
	}
	requests, err := c.dir.ListFriendRequests(ctx, token)
	if err != nil {
		if c.expire(err) {
			return err
		}
		log.Printf("list friend requests: %v", err)
	}
	invites, err := c.dir.ListRoomInvites(ctx, token)
	if err != nil {
		if c.expire(err) {
			return err
		}
		log.Printf("list room invites: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateLoggedOut {
		return nil
	}
	if rooms != nil {
		c.rooms = rooms
	}
	if friends != nil {
		c.friends = friends
	}
	if requests != nil {
		c.requests = requests
	}
	if invites != nil {
		c.invites = invites
	}
	c.notifyLocked()
	return nil
}

// EnterRoom makes room the active room: any prior room channel is closed
// first, the live channel opens, and one page of history is fetched. Live
// events arriving before history resolves are buffered and spliced in after
// it, deduped by id.
func (c *Controller) EnterRoom(ctx context.Context, room string) error {
	c.mu.Lock()
	if c.state != StateLobby && c.state != StateRoomActive {
		c.mu.Unlock()
		return ErrNotLoggedIn
	}
	token := c.session.Token
	identity := c.session.Identity

	if c.roomChannel != nil {
		prev := c.roomChannel
		c.roomChannel = nil
		c.mu.Unlock()
		prev.Close()
		c.mu.Lock()
	}

	c.roomGen++
	gen := c.roomGen
	c.activeRoom = room
	c.resetRoomStateLocked()
	c.setStateLocked(StateRoomActive)
	c.notifyLocked()
	c.mu.Unlock()

	ch, err := c.dial(ctx, token, identity, room, c.roomHandlers(gen))
	if err != nil {
		c.abandonEntry(gen)
		return fmt.Errorf("enter room %q: %w", room, err)
	}

	c.mu.Lock()
	if gen != c.roomGen {
		c.mu.Unlock()
		ch.Close()
		return nil
	}
	c.roomChannel = ch
	c.mu.Unlock()

	history, err := c.dir.ListMessages(ctx, token, room, 0, c.opts.HistoryPageSize)
	if err != nil {
		if c.expire(err) {
			return err
		}
		ch.Close()
		c.abandonEntry(gen)
		return fmt.Errorf("fetch history for %q: %w", room, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.roomGen {
		// The room changed while the fetch was in flight; drop the response.
		return nil
	}

	sort.Slice(history, func(i, j int) bool { return history[i].ID < history[j].ID })
	for _, msg := range history {
		c.appendMessageLocked(msg)
	}
	buffered := c.pending
	sort.Slice(buffered, func(i, j int) bool { return buffered[i].ID < buffered[j].ID })
	for _, msg := range buffered {
		c.appendMessageLocked(msg)
	}
	c.pending = nil
	c.historyReady = true

	if err := c.creds.SaveLastRoom(room, true); err != nil {
		log.Printf("persist last room: %v", err)
	}
	c.notifyLocked()
	return nil
}

// abandonEntry rolls a failed room entry back to the lobby, unless the room
// has changed again in the meantime. The caller has already closed the
// channel; the handle must not survive into the lobby.
func (c *Controller) abandonEntry(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.roomGen || c.state == StateLoggedOut {
		return
	}
	c.roomChannel = nil
	c.roomGen++
	c.activeRoom = ""
	c.resetRoomStateLocked()
	c.setStateLocked(StateLobby)
	c.notifyLocked()
}

// ExitRoom closes the active room channel and returns to the lobby. The
// server-side membership is untouched.
func (c *Controller) ExitRoom() error {
	c.mu.Lock()
	if c.state != StateRoomActive {
		c.mu.Unlock()
		return ErrNoActiveRoom
	}
	ch := c.roomChannel
	c.roomChannel = nil
	c.roomGen++
	c.activeRoom = ""
	c.resetRoomStateLocked()
	c.setStateLocked(StateLobby)
	c.notifyLocked()
	c.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if err := c.creds.SaveLastRoom("", false); err != nil {
		log.Printf("persist last room: %v", err)
	}
	return nil
}

// LeaveRoom abandons membership of the active room on the server, then
// exits locally and refreshes the room list.
func (c *Controller) LeaveRoom(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRoomActive {
		c.mu.Unlock()
		return ErrNoActiveRoom
	}
	token := c.session.Token
	room := c.activeRoom
	c.mu.Unlock()

	if err := c.dir.LeaveRoom(ctx, token, room); err != nil {
		if c.expire(err) {
			return err
		}
		return fmt.Errorf("leave room %q: %w", room, err)
	}
	if err := c.ExitRoom(); err != nil && !errors.Is(err, ErrNoActiveRoom) {
		return err
	}
	return c.RefreshDirectory(ctx)
}

// CreateRoom creates a room and makes it active. Invite failures afterwards
// never roll the room back.
func (c *Controller) CreateRoom(ctx context.Context, name string) error {
	c.mu.Lock()
	if c.state != StateLobby && c.state != StateRoomActive {
		c.mu.Unlock()
		return ErrNotLoggedIn
	}
	token := c.session.Token
	c.mu.Unlock()

	room, err := c.dir.CreateRoom(ctx, token, name)
	if err != nil {
		if c.expire(err) {
			return err
		}
		return fmt.Errorf("create room: %w", err)
	}

	c.mu.Lock()
	c.rooms = append(c.rooms, room)
	c.notifyLocked()
	c.mu.Unlock()

	return c.EnterRoom(ctx, room.Name)
}

// SendMessage delivers content to the active room. Fire-and-forget; sending
// also clears the local composing state.
func (c *Controller) SendMessage(content string) error {
	c.mu.Lock()
	ch := c.roomChannel
	c.mu.Unlock()
	if ch == nil {
		return ErrNoActiveRoom
	}
	if err := ch.Send(content); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if err := ch.StopTyping(); err != nil && !errors.Is(err, live.ErrChannelClosed) {
		log.Printf("stop typing: %v", err)
	}
	return nil
}

// SetTyping announces or clears the local composing state.
func (c *Controller) SetTyping(composing bool) error {
	c.mu.Lock()
	ch := c.roomChannel
	c.mu.Unlock()
	if ch == nil {
		return ErrNoActiveRoom
	}
	if composing {
		return ch.Typing()
	}
	return ch.StopTyping()
}

// Search runs a full-text search over message content.
func (c *Controller) Search(ctx context.Context, query string) ([]models.Message, error) {
	c.mu.Lock()
	if c.state == StateLoggedOut || c.state == StateAuthenticating {
		c.mu.Unlock()
		return nil, ErrNotLoggedIn
	}
	token := c.session.Token
	c.mu.Unlock()

	results, err := c.dir.Search(ctx, token, query)
	if err != nil {
		if c.expire(err) {
			return nil, err
		}
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

// AddFriend befriends a user and refreshes the friend list.
func (c *Controller) AddFriend(ctx context.Context, username string) error {
	return c.mutateDirectory(ctx, "add friend", func(ctx context.Context, token string) error {
		_, err := c.dir.AddFriend(ctx, token, username)
		return err
	})
}

// RemoveFriend removes a friendship and refreshes the friend list.
func (c *Controller) RemoveFriend(ctx context.Context, username string) error {
	return c.mutateDirectory(ctx, "remove friend", func(ctx context.Context, token string) error {
		return c.dir.RemoveFriend(ctx, token, username)
	})
}

// SendFriendRequest sends a request to another user.
func (c *Controller) SendFriendRequest(ctx context.Context, toUsername string) error {
	return c.mutateDirectory(ctx, "send friend request", func(ctx context.Context, token string) error {
		return c.dir.SendFriendRequest(ctx, token, toUsername)
	})
}

// RespondFriendRequest accepts or rejects a pending request and refreshes
// the affected lists.
func (c *Controller) RespondFriendRequest(ctx context.Context, requestID int, accept bool) error {
	return c.mutateDirectory(ctx, "respond friend request", func(ctx context.Context, token string) error {
		return c.dir.RespondFriendRequest(ctx, token, requestID, accept)
	})
}

// SendRoomInvite invites a user to a room.
func (c *Controller) SendRoomInvite(ctx context.Context, room, toUsername string) error {
	return c.mutateDirectory(ctx, "send room invite", func(ctx context.Context, token string) error {
		return c.dir.SendRoomInvite(ctx, token, room, toUsername)
	})
}

// RespondRoomInvite accepts or rejects a pending invite and refreshes the
// affected lists.
func (c *Controller) RespondRoomInvite(ctx context.Context, inviteID int, accept bool) error {
	return c.mutateDirectory(ctx, "respond room invite", func(ctx context.Context, token string) error {
		return c.dir.RespondRoomInvite(ctx, token, inviteID, accept)
	})
}

// mutateDirectory runs a mutating call and re-fetches the cached lists on
// success. No optimistic merge beyond that.
func (c *Controller) mutateDirectory(ctx context.Context, op string, fn func(ctx context.Context, token string) error) error {
	c.mu.Lock()
	if c.state == StateLoggedOut || c.state == StateAuthenticating {
		c.mu.Unlock()
		return ErrNotLoggedIn
	}
	token := c.session.Token
	c.mu.Unlock()

	if err := fn(ctx, token); err != nil {
		if c.expire(err) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return c.RefreshDirectory(ctx)
}

// Snapshot returns a copy of the current view state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears down channels without touching the persisted credential.
func (c *Controller) Close() {
	c.mu.Lock()
	room := c.roomChannel
	bg := c.backgroundChannel
	c.roomChannel = nil
	c.backgroundChannel = nil
	c.roomGen++
	c.mu.Unlock()

	if room != nil {
		room.Close()
	}
	if bg != nil {
		bg.Close()
	}
}

// roomHandlers builds the callbacks for a room-scoped channel. Every
// callback re-checks the room generation at invocation time, so a handler
// registered for an abandoned room can never touch current state.
func (c *Controller) roomHandlers(gen uint64) live.Handlers {
	return live.Handlers{
		Message: func(msg models.Message) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.roomGen {
				return
			}
			if !c.historyReady {
				c.pending = append(c.pending, msg)
				return
			}
			if c.appendMessageLocked(msg) {
				delete(c.typing, msg.Sender)
				c.notifyLocked()
			}
		},
		Presence: func(identities []string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.roomGen {
				return
			}
			c.presence = identities
			c.notifyLocked()
		},
		TypingStarted: func(identity string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.roomGen || identity == c.session.Identity {
				return
			}
			c.typing[identity] = c.now().Add(c.opts.TypingTTL)
			c.notifyLocked()
			time.AfterFunc(c.opts.TypingTTL+50*time.Millisecond, func() { c.pruneTyping(gen) })
		},
		TypingStopped: func(identity string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.roomGen {
				return
			}
			if _, ok := c.typing[identity]; ok {
				delete(c.typing, identity)
				c.notifyLocked()
			}
		},
		Disconnected: func(reason string) {
			// No automatic reconnect; the user re-enters the room.
			log.Printf("room channel disconnected: %s", reason)
		},
	}
}

func (c *Controller) backgroundHandlers() live.Handlers {
	return live.Handlers{
		Message: func(msg models.Message) {
			c.mu.Lock()
			active := c.activeRoom
			notify := c.onNotify
			c.mu.Unlock()
			if msg.Room == active || notify == nil {
				return
			}
			notify(msg)
		},
		Disconnected: func(reason string) {
			log.Printf("background channel disconnected: %s", reason)
		},
	}
}

// pruneTyping drops expired typing notices for the given room generation.
func (c *Controller) pruneTyping(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.roomGen {
		return
	}
	changed := false
	now := c.now()
	for identity, deadline := range c.typing {
		if !deadline.After(now) {
			delete(c.typing, identity)
			changed = true
		}
	}
	if changed {
		c.notifyLocked()
	}
}

// expire forces the logged-out transition when err is a 401. Returns whether
// it did.
func (c *Controller) expire(err error) bool {
	if !errors.Is(err, directory.ErrUnauthorized) {
		return false
	}
	c.forceLoggedOut()
	if cerr := c.creds.Clear(); cerr != nil {
		log.Printf("clear expired credential: %v", cerr)
	}
	return true
}

// forceLoggedOut tears down all channels and cached state from any state.
func (c *Controller) forceLoggedOut() {
	c.mu.Lock()
	room := c.roomChannel
	bg := c.backgroundChannel
	c.roomChannel = nil
	c.backgroundChannel = nil
	c.roomGen++
	c.session = models.Session{}
	c.rooms = nil
	c.friends = nil
	c.requests = nil
	c.invites = nil
	c.activeRoom = ""
	c.resetRoomStateLocked()
	c.setStateLocked(StateLoggedOut)
	c.notifyLocked()
	c.mu.Unlock()

	if room != nil {
		room.Close()
	}
	if bg != nil {
		bg.Close()
	}
}

// appendMessageLocked appends msg unless its id was already delivered.
func (c *Controller) appendMessageLocked(msg models.Message) bool {
	if _, ok := c.seen[msg.ID]; ok {
		return false
	}
	c.seen[msg.ID] = struct{}{}
	c.messages = append(c.messages, msg)
	return true
}

func (c *Controller) resetRoomStateLocked() {
	c.historyReady = false
	c.pending = nil
	c.messages = nil
	c.seen = make(map[int]struct{})
	c.presence = nil
	c.typing = make(map[string]time.Time)
}

func (c *Controller) setStateLocked(state State) {
	c.state = state
	observability.SetSessionState(int(state))
}

func (c *Controller) notifyLocked() {
	if c.onChange != nil {
		c.onChange(c.snapshotLocked())
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	now := c.now()
	typing := make([]string, 0, len(c.typing))
	for identity, deadline := range c.typing {
		if deadline.After(now) {
			typing = append(typing, identity)
		}
	}
	sort.Strings(typing)

	return Snapshot{
		State:          c.state,
		Identity:       c.session.Identity,
		ActiveRoom:     c.activeRoom,
		Rooms:          append([]models.RoomSummary(nil), c.rooms...),
		Friends:        append([]models.FriendEdge(nil), c.friends...),
		FriendRequests: append([]models.FriendRequest(nil), c.requests...),
		RoomInvites:    append([]models.RoomInvite(nil), c.invites...),
		Messages:       append([]models.Message(nil), c.messages...),
		Presence:       append([]string(nil), c.presence...),
		Typing:         typing,
	}
}
