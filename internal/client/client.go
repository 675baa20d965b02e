// Package client talks to the chat REST API: the room directory, the history
// pull and the durable message write.
package client

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
)

// DefaultBaseURL is the development server address.
const DefaultBaseURL = "http://127.0.0.1:8000"

// Client is a chat API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a new client. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api error %d", e.StatusCode)
	}
	return fmt.Sprintf("chat api error %d: %s", e.StatusCode, e.Message)
}

// doRequest performs an HTTP request and decodes a JSON answer into out.
func (c *Client) doRequest(ctx context.Context, method, path string, hdr http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		json.Unmarshal(respBody, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = errResp.Detail
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Room is an entry of the room directory.
type Room struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a persisted chat message.
type Message struct {
	ID        int64     `json:"id"`
	Room      int64     `json:"room"`
	User      string    `json:"user"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IDString returns the message id as text.
func (m Message) IDString() string { return strconv.FormatInt(m.ID, 10) }

// RoomString returns the owning room id as text, or "" when absent.
func (m Message) RoomString() string {
	if m.Room == 0 {
		return ""
	}
	return strconv.FormatInt(m.Room, 10)
}

// ListRooms returns the room directory.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := c.doRequest(ctx, http.MethodGet, "/api/rooms/", nil, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateRoomRequest is the request body for creating a room.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// CreateRoom creates a new room.
func (c *Client) CreateRoom(ctx context.Context, name string) (*Room, error) {
	var room Room
	if err := c.doRequest(ctx, http.MethodPost, "/api/rooms/", nil, CreateRoomRequest{Name: name}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// History retrieves a room's messages, oldest first.
func (c *Client) History(ctx context.Context, roomID string) ([]Message, error) {
	var messages []Message
	path := "/api/messages/?room=" + url.QueryEscape(roomID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// PostMessageRequest is the request body for the durable write.
type PostMessageRequest struct {
	Room    json.Number `json:"room"`
	User    string      `json:"user"`
	Content string      `json:"content"`
}

// PostMessage persists a message and returns the stored record.
func (c *Client) PostMessage(ctx context.Context, roomID, user, content string) (*Message, error) {
	if _, err := strconv.ParseInt(roomID, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid room id %q", roomID)
	}
	req := PostMessageRequest{
		Room:    json.Number(roomID),
		User:    user,
		Content: content,
	}
	hdr := http.Header{}
	hdr.Set("X-Chat-User", user)
	var msg Message
	if err := c.doRequest(ctx, http.MethodPost, "/api/messages/", hdr, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                    `json:"status"`
	Version   string                    `json:"version"`
	Checks    map[string]map[string]any `json:"checks"`
	Timestamp string                    `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
