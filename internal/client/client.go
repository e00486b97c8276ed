// Package client talks to the chat service: JSON commands over HTTP and the
// listener protocol over a websocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/models"
)

// APIError is a non-2xx reply from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: %d %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client is safe for concurrent use once constructed.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	listener *listener
}

// New creates a client for the service at baseURL authenticated by token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// IdentityFromToken reads the identity claims of a session token without
// verifying the signature. The server verifies it on every request.
func IdentityFromToken(token string) (auth.Identity, error) {
	var claims auth.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return auth.Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return auth.Identity{UID: claims.Subject, Email: claims.Email, Admin: claims.Role == auth.RoleAdmin}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func chatPath(chatID string, rest ...string) string {
	p := "/chats/" + url.PathEscape(chatID)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

// Chats lists the caller's chats split into main and archived.
func (c *Client) Chats(ctx context.Context) (active, archived []models.Chat, err error) {
	var out struct {
		Chats    []models.Chat `json:"chats"`
		Archived []models.Chat `json:"archived"`
	}
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Chats, out.Archived, nil
}

// OpenDirect finds or creates the direct chat with uid.
func (c *Client) OpenDirect(ctx context.Context, uid string) (models.Chat, error) {
	var chat models.Chat
	err := c.do(ctx, http.MethodPost, "/chats/direct", map[string]string{"user_id": uid}, &chat)
	return chat, err
}

// AcceptInvite follows an invite link for uid.
func (c *Client) AcceptInvite(ctx context.Context, uid string) (models.Chat, error) {
	var chat models.Chat
	err := c.do(ctx, http.MethodPost, "/invite/"+url.PathEscape(uid), nil, &chat)
	return chat, err
}

// JoinRoom adds the caller to a public room.
func (c *Client) JoinRoom(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(chatID)+"/join", nil, &chat)
	return chat, err
}

// CreateRoom opens a public room and returns it with its join link.
func (c *Client) CreateRoom(ctx context.Context, name string) (models.Chat, string, error) {
	var out struct {
		Chat     models.Chat `json:"chat"`
		JoinLink string      `json:"join_link"`
	}
	err := c.do(ctx, http.MethodPost, "/rooms", map[string]string{"name": name}, &out)
	return out.Chat, out.JoinLink, err
}

// Messages returns the recent window of a chat, oldest first.
func (c *Client) Messages(ctx context.Context, chatID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, chatPath(chatID, "messages"), nil, &out)
	return out.Messages, err
}

// SendText posts a text message, optionally quoting replyTo.
func (c *Client) SendText(ctx context.Context, chatID, text, replyTo string) (models.Message, error) {
	var msg models.Message
	req := map[string]string{"text": text}
	if replyTo != "" {
		req["reply_to"] = replyTo
	}
	err := c.do(ctx, http.MethodPost, chatPath(chatID, "messages"), req, &msg)
	return msg, err
}

// MarkRead adds the caller to a message's read set.
func (c *Client) MarkRead(ctx context.Context, chatID, messageID string) error {
	return c.do(ctx, http.MethodPost, chatPath(chatID, "messages", messageID, "read"), nil, nil)
}

// React toggles the caller's reaction.
func (c *Client) React(ctx context.Context, chatID, messageID, emoji string) (models.Message, error) {
	var msg models.Message
	err := c.do(ctx, http.MethodPost, chatPath(chatID, "messages", messageID, "reactions"), map[string]string{"emoji": emoji}, &msg)
	return msg, err
}

// Search asks the server to filter a chat's recent window.
func (c *Client) Search(ctx context.Context, chatID, q string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, chatPath(chatID, "messages", "search")+"?q="+url.QueryEscape(q), nil, &out)
	return out.Messages, err
}

// Profile returns the caller's profile, created on first access.
func (c *Client) Profile(ctx context.Context) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodGet, "/profile", nil, &u)
	return u, err
}
