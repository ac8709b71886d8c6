// Package fakeserver is an in-process stand-in for the external chat
// service: the directory REST API plus the websocket live delivery endpoint.
// Tests drive the real client stack against it.
package fakeserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"chat-client/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type friendRequest struct {
	ID   int
	From string
	To   string
}

type roomInvite struct {
	ID   int
	Room string
	From string
	To   string
}

type client struct {
	conn     *websocket.Conn
	username string
	room     string // empty for session-scoped connections
	writeMu  sync.Mutex
}

// Server is one fake service instance. All state is in memory.
type Server struct {
	secret []byte
	http   *httptest.Server

	mu        sync.Mutex
	users     map[string]string
	rooms     map[string]bool
	members   map[string]map[string]bool
	friends   map[string]map[string]bool
	requests  []friendRequest
	invites   []roomInvite
	messages  []models.Message
	clients   map[*client]bool
	nextMsgID int
	nextReqID int
	nextInvID int

	// FailInvites makes invite creation return 500, for failure-path tests.
	FailInvites bool
}

// New starts a fake service on an ephemeral port.
func New() *Server {
	s := &Server{
		secret:  []byte("fakeserver-secret"),
		users:   make(map[string]string),
		rooms:   make(map[string]bool),
		members: make(map[string]map[string]bool),
		friends: make(map[string]map[string]bool),
		clients: make(map[*client]bool),
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.POST("/token", s.issueToken)
	router.POST("/users/", s.createUser)

	auth := router.Group("/", s.authMiddleware)
	auth.GET("/rooms/", s.listRooms)
	auth.POST("/rooms/", s.createRoom)
	auth.DELETE("/rooms/:name/leave", s.leaveRoom)
	auth.GET("/messages/", s.listMessages)
	auth.GET("/search", s.search)
	auth.GET("/friends/", s.listFriends)
	auth.POST("/friends/", s.addFriend)
	auth.DELETE("/friends/:username", s.removeFriend)
	auth.GET("/friend_requests/", s.listFriendRequests)
	auth.POST("/friend_requests/", s.sendFriendRequest)
	auth.POST("/friend_requests/:id/respond", s.respondFriendRequest)
	auth.GET("/room_invites/", s.listRoomInvites)
	auth.POST("/room_invites/", s.sendRoomInvite)
	auth.POST("/room_invites/:id/respond", s.respondRoomInvite)

	router.GET("/ws", s.handleWS)

	s.http = httptest.NewServer(router)
	return s
}

// URL is the REST base URL.
func (s *Server) URL() string { return s.http.URL }

// WSURL is the live channel endpoint.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
}

// Close shuts the fake service down.
func (s *Server) Close() {
	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clients = make(map[*client]bool)
	s.mu.Unlock()
	s.http.Close()
}

// SeedUser registers a user directly.
func (s *Server) SeedUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
}

// SeedRoom creates a room and its member set directly.
func (s *Server) SeedRoom(name string, memberUsernames ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[name] = true
	if s.members[name] == nil {
		s.members[name] = make(map[string]bool)
	}
	for _, u := range memberUsernames {
		s.members[name][u] = true
	}
}

// SeedMessage appends a history message directly and returns it.
func (s *Server) SeedMessage(room, sender, content string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendMessageLocked(room, sender, content)
}

// PushMessage appends a message and broadcasts it to connected clients, as
// if another user had sent it.
func (s *Server) PushMessage(room, sender, content string) models.Message {
	s.mu.Lock()
	msg := s.appendMessageLocked(room, sender, content)
	targets := s.targetsLocked(room)
	s.mu.Unlock()

	s.broadcast(targets, models.EventReceiveMessage, msg)
	return msg
}

// Token mints a valid bearer token for a username, bypassing the login
// exchange.
func (s *Server) Token(username string) string {
	return s.mintToken(username)
}

// RevokeAllTokens rotates the signing secret, invalidating every issued
// token.
func (s *Server) RevokeAllTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = []byte(fmt.Sprintf("rotated-%d", time.Now().UnixNano()))
}

func (s *Server) appendMessageLocked(room, sender, content string) models.Message {
	s.nextMsgID++
	msg := models.Message{
		ID:        s.nextMsgID,
		Room:      room,
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

// --- auth ---

func (s *Server) mintToken(username string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": username,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, _ := tok.SignedString(s.secret)
	return signed
}

func (s *Server) verifyToken(raw string) (string, error) {
	s.mu.Lock()
	secret := s.secret
	s.mu.Unlock()

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !tok.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("missing subject")
	}
	return sub, nil
}

func (s *Server) authMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "missing authorization"})
		return
	}
	username, err := s.verifyToken(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "could not validate credentials"})
		return
	}
	c.Set("username", username)
	c.Next()
}

func (s *Server) issueToken(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	s.mu.Lock()
	stored, ok := s.users[username]
	s.mu.Unlock()
	if !ok || stored != password {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "incorrect username or password"})
		return
	}
	c.JSON(http.StatusOK, models.TokenResponse{AccessToken: s.mintToken(username), TokenType: "bearer"})
}

func (s *Server) createUser(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid payload"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Username]; exists {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "username already registered"})
		return
	}
	s.users[req.Username] = req.Password
	c.JSON(http.StatusOK, gin.H{"username": req.Username})
}

// --- rooms and messages ---

func (s *Server) listRooms(c *gin.Context) {
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RoomSummary, 0)
	id := 0
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id++
		if s.members[name][username] {
			out = append(out, models.RoomSummary{ID: id, Name: name})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createRoom(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid payload"})
		return
	}
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[req.Name] {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "room already exists"})
		return
	}
	s.rooms[req.Name] = true
	s.members[req.Name] = map[string]bool{username: true}
	c.JSON(http.StatusOK, models.RoomSummary{ID: len(s.rooms), Name: req.Name})
}

func (s *Server) leaveRoom(c *gin.Context) {
	name := c.Param("name")
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rooms[name] {
		c.JSON(http.StatusNotFound, gin.H{"detail": "room not found"})
		return
	}
	delete(s.members[name], username)
	c.Status(http.StatusNoContent)
}

func (s *Server) listMessages(c *gin.Context) {
	room := c.Query("room")
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, 0)
	for _, msg := range s.messages {
		if room != "" && msg.Room != room {
			continue
		}
		out = append(out, msg)
	}
	if skip < 0 {
		skip = 0
	}
	if skip > len(out) {
		skip = len(out)
	}
	out = out[skip:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) search(c *gin.Context) {
	q := strings.ToLower(c.Query("q"))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, 0)
	if q != "" {
		for _, msg := range s.messages {
			if strings.Contains(strings.ToLower(msg.Content), q) {
				out = append(out, msg)
			}
		}
	}
	c.JSON(http.StatusOK, out)
}

// --- friends ---

func privateRoomName(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "private_" + a + "_" + b
}

func (s *Server) befriendLocked(a, b string) {
	if s.friends[a] == nil {
		s.friends[a] = make(map[string]bool)
	}
	if s.friends[b] == nil {
		s.friends[b] = make(map[string]bool)
	}
	s.friends[a][b] = true
	s.friends[b][a] = true

	room := privateRoomName(a, b)
	s.rooms[room] = true
	if s.members[room] == nil {
		s.members[room] = make(map[string]bool)
	}
	s.members[room][a] = true
	s.members[room][b] = true
}

func (s *Server) listFriends(c *gin.Context) {
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FriendEdge, 0)
	names := make([]string, 0, len(s.friends[username]))
	for friend := range s.friends[username] {
		names = append(names, friend)
	}
	sort.Strings(names)
	for i, friend := range names {
		out = append(out, models.FriendEdge{
			ID:       i + 1,
			Username: friend,
			RoomName: privateRoomName(username, friend),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) addFriend(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid payload"})
		return
	}
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[req.Username]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "user not found"})
		return
	}
	if req.Username == username {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "can't friend yourself"})
		return
	}
	if s.friends[username][req.Username] {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "already friends"})
		return
	}
	s.befriendLocked(username, req.Username)
	c.JSON(http.StatusOK, models.FriendEdge{
		ID:       1,
		Username: req.Username,
		RoomName: privateRoomName(username, req.Username),
	})
}

func (s *Server) removeFriend(c *gin.Context) {
	target := c.Param("username")
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[target]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "user not found"})
		return
	}
	delete(s.friends[username], target)
	delete(s.friends[target], username)
	c.Status(http.StatusNoContent)
}

func (s *Server) listFriendRequests(c *gin.Context) {
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FriendRequest, 0)
	for _, fr := range s.requests {
		if fr.To == username {
			out = append(out, models.FriendRequest{ID: fr.ID, FromUsername: fr.From, Status: "pending"})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) sendFriendRequest(c *gin.Context) {
	var req struct {
		ToUsername string `json:"to_username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ToUsername == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid payload"})
		return
	}
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[req.ToUsername]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "user not found"})
		return
	}
	for _, fr := range s.requests {
		if fr.From == username && fr.To == req.ToUsername {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "request already pending"})
			return
		}
	}
	s.nextReqID++
	s.requests = append(s.requests, friendRequest{ID: s.nextReqID, From: username, To: req.ToUsername})
	c.JSON(http.StatusOK, models.FriendRequest{ID: s.nextReqID, FromUsername: username, Status: "pending"})
}

func (s *Server) respondFriendRequest(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid id"})
		return
	}
	var req struct {
		Action string `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid payload"})
		return
	}
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, fr := range s.requests {
		if fr.ID == id && fr.To == username {
			if req.Action == "accept" {
				s.befriendLocked(fr.From, fr.To)
			}
			s.requests = append(s.requests[:i], s.requests[i+1:]...)
			c.JSON(http.StatusOK, gin.H{"result": req.Action})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "no such pending request"})
}

// --- room invites ---

func (s *Server) listRoomInvites(c *gin.Context) {
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RoomInvite, 0)
	for _, inv := range s.invites {
		if inv.To == username {
			out = append(out, models.RoomInvite{ID: inv.ID, RoomName: inv.Room, FromUsername: inv.From, Status: "pending"})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) sendRoomInvite(c *gin.Context) {
	if s.FailInvites {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "invite backend down"})
		return
	}

	var req struct {
		RoomName   string `json:"room_name"`
		ToUsername string `json:"to_username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomName == "" || req.ToUsername == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid payload"})
		return
	}
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rooms[req.RoomName] {
		c.JSON(http.StatusNotFound, gin.H{"detail": "room not found"})
		return
	}
	if _, ok := s.users[req.ToUsername]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "user not found"})
		return
	}
	s.nextInvID++
	s.invites = append(s.invites, roomInvite{ID: s.nextInvID, Room: req.RoomName, From: username, To: req.ToUsername})
	c.JSON(http.StatusOK, models.RoomInvite{ID: s.nextInvID, RoomName: req.RoomName, FromUsername: username, Status: "pending"})
}

func (s *Server) respondRoomInvite(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid id"})
		return
	}
	var req struct {
		Action string `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid payload"})
		return
	}
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, inv := range s.invites {
		if inv.ID == id && inv.To == username {
			if req.Action == "accept" {
				if s.members[inv.Room] == nil {
					s.members[inv.Room] = make(map[string]bool)
				}
				s.members[inv.Room][username] = true
			}
			s.invites = append(s.invites[:i], s.invites[i+1:]...)
			c.JSON(http.StatusOK, models.RoomInvite{ID: inv.ID, RoomName: inv.Room, FromUsername: inv.From, Status: req.Action + "ed"})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "no such invite"})
}
