// Package directory is the REST client for the external chat service: auth,
// rooms, history, search, friends and invites. All operations are plain
// request/response; the live channel is a separate concern.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

const defaultTimeout = 15 * time.Second

// Client calls the directory REST API. It is stateless with respect to the
// credential: authenticated operations take the bearer token per call, so a
// response can never be attributed to the wrong session.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// IssueToken exchanges identity and secret for a bearer token. The token
// endpoint expects a form-encoded body.
func (c *Client) IssueToken(ctx context.Context, identity, secret string) (string, error) {
	form := url.Values{}
	form.Set("username", identity)
	form.Set("password", secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok models.TokenResponse
	if err := c.send(req, "issue_token", &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", &APIError{Status: http.StatusUnauthorized, Detail: "empty token"}
	}
	return tok.AccessToken, nil
}

// CreateIdentity registers a new user.
func (c *Client) CreateIdentity(ctx context.Context, identity, secret string) error {
	body := map[string]string{"username": identity, "password": secret}
	return c.do(ctx, "create_identity", http.MethodPost, "/users/", "", body, nil)
}

// Ping probes token validity with a minimal history request. A 401 surfaces
// as ErrUnauthorized; any other failure means the token could not be checked.
func (c *Client) Ping(ctx context.Context, token string) error {
	return c.do(ctx, "ping", http.MethodGet, "/messages/?limit=1", token, nil, nil)
}

// ListRooms returns the rooms visible to the authenticated user.
func (c *Client) ListRooms(ctx context.Context, token string) ([]models.RoomSummary, error) {
	var rooms []models.RoomSummary
	if err := c.do(ctx, "list_rooms", http.MethodGet, "/rooms/", token, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateRoom creates a group room.
func (c *Client) CreateRoom(ctx context.Context, token, name string) (models.RoomSummary, error) {
	var room models.RoomSummary
	body := map[string]string{"name": name}
	if err := c.do(ctx, "create_room", http.MethodPost, "/rooms/", token, body, &room); err != nil {
		return models.RoomSummary{}, err
	}
	return room, nil
}

// LeaveRoom removes the user from a room.
func (c *Client) LeaveRoom(ctx context.Context, token, room string) error {
	return c.do(ctx, "leave_room", http.MethodDelete, "/rooms/"+url.PathEscape(room)+"/leave", token, nil, nil)
}

// ListMessages fetches one page of room history, ascending by id.
func (c *Client) ListMessages(ctx context.Context, token, room string, skip, limit int) ([]models.Message, error) {
	q := url.Values{}
	q.Set("room", room)
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))

	var msgs []models.Message
	if err := c.do(ctx, "list_messages", http.MethodGet, "/messages/?"+q.Encode(), token, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Search runs a full-text search over message content.
func (c *Client) Search(ctx context.Context, token, query string) ([]models.Message, error) {
	var msgs []models.Message
	path := "/search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, "search", http.MethodGet, path, token, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListFriends returns the accepted friend edges for the user.
func (c *Client) ListFriends(ctx context.Context, token string) ([]models.FriendEdge, error) {
	var friends []models.FriendEdge
	if err := c.do(ctx, "list_friends", http.MethodGet, "/friends/", token, nil, &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

// AddFriend creates a friendship directly and returns the edge with its
// derived private room.
func (c *Client) AddFriend(ctx context.Context, token, username string) (models.FriendEdge, error) {
	var edge models.FriendEdge
	body := map[string]string{"username": username}
	if err := c.do(ctx, "add_friend", http.MethodPost, "/friends/", token, body, &edge); err != nil {
		return models.FriendEdge{}, err
	}
	return edge, nil
}

// RemoveFriend deletes a friendship in both directions.
func (c *Client) RemoveFriend(ctx context.Context, token, username string) error {
	return c.do(ctx, "remove_friend", http.MethodDelete, "/friends/"+url.PathEscape(username), token, nil, nil)
}

// ListFriendRequests returns pending incoming requests.
func (c *Client) ListFriendRequests(ctx context.Context, token string) ([]models.FriendRequest, error) {
	var reqs []models.FriendRequest
	if err := c.do(ctx, "list_friend_requests", http.MethodGet, "/friend_requests/", token, nil, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// SendFriendRequest sends a request to another user.
func (c *Client) SendFriendRequest(ctx context.Context, token, toUsername string) error {
	body := map[string]string{"to_username": toUsername}
	return c.do(ctx, "send_friend_request", http.MethodPost, "/friend_requests/", token, body, nil)
}

// RespondFriendRequest accepts or rejects a pending request.
func (c *Client) RespondFriendRequest(ctx context.Context, token string, requestID int, accept bool) error {
	body := map[string]string{"action": action(accept)}
	path := "/friend_requests/" + strconv.Itoa(requestID) + "/respond"
	return c.do(ctx, "respond_friend_request", http.MethodPost, path, token, body, nil)
}

// ListRoomInvites returns pending incoming room invites.
func (c *Client) ListRoomInvites(ctx context.Context, token string) ([]models.RoomInvite, error) {
	var invites []models.RoomInvite
	if err := c.do(ctx, "list_room_invites", http.MethodGet, "/room_invites/", token, nil, &invites); err != nil {
		return nil, err
	}
	return invites, nil
}

// SendRoomInvite invites a user to a room.
func (c *Client) SendRoomInvite(ctx context.Context, token, room, toUsername string) error {
	body := map[string]string{"room_name": room, "to_username": toUsername}
	return c.do(ctx, "send_room_invite", http.MethodPost, "/room_invites/", token, body, nil)
}

// RespondRoomInvite accepts or rejects a pending invite.
func (c *Client) RespondRoomInvite(ctx context.Context, token string, inviteID int, accept bool) error {
	body := map[string]string{"action": action(accept)}
	path := "/room_invites/" + strconv.Itoa(inviteID) + "/respond"
	return c.do(ctx, "respond_room_invite", http.MethodPost, path, token, body, nil)
}

func action(accept bool) string {
	if accept {
		return "accept"
	}
	return "reject"
}

// do builds and sends a JSON request, decoding the response into out when
// non-nil.
func (c *Client) do(ctx context.Context, op, method, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.send(req, op, out)
}

func (c *Client) send(req *http.Request, op string, out interface{}) error {
	ctx, span := otel.Tracer("chat-client/directory").Start(req.Context(), "directory."+op)
	defer span.End()
	req = req.WithContext(ctx)
	req.Header.Set("X-Request-Id", uuid.NewString())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.ObserveDirectoryRequest(op, "error", time.Since(start))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	observability.ObserveDirectoryRequest(op, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Detail: decodeDetail(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func decodeDetail(r io.Reader) string {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return ""
	}
	if body.Detail != "" {
		return body.Detail
	}
	return body.Error
}
