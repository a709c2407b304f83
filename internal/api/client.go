// Package api provides the HTTP client for the chat backend contracts:
// room snapshots, message send, the room-key registry, mention
// notifications and typing emission.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/typow21/group-chat-gpt-frontend/internal/models"
)

// Client is a chat backend API client authenticated by bearer token.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	log zerolog.Logger
}

// NewClient creates a new backend client.
func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("component", "api").Logger(),
	}
}

// doRequest performs an HTTP request against the backend.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("backend error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// FetchRoom retrieves the room snapshot: name, participants, bot roster
// and message history.
func (c *Client) FetchRoom(ctx context.Context, roomID string) (*models.Room, error) {
	respBody, err := c.doRequest(ctx, "GET", "/room/"+roomID, nil)
	if err != nil {
		return nil, err
	}

	var room models.Room
	if err := json.Unmarshal(respBody, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	SenderID string `json:"senderId"`
	RoomID   string `json:"roomId"`
	Content  string `json:"content"`
}

// SendResult is the parsed send response.
type SendResult struct {
	ID          string // authoritative message id, when the backend returns one
	NewRoomName string // set when the send triggered a room rename
}

// sendMessageResponse covers both response shapes the backend uses: a
// bare id, or a nested message object.
type sendMessageResponse struct {
	ID      string `json:"id"`
	Message *struct {
		ID string `json:"id"`
	} `json:"message"`
	NewRoomName string `json:"newRoomName"`
	Error       string `json:"error"`
}

// SendMessage submits a message body (already encrypted by the caller).
func (c *Client) SendMessage(ctx context.Context, senderID, roomID, content string) (*SendResult, error) {
	reqBody, _ := json.Marshal(SendMessageRequest{SenderID: senderID, RoomID: roomID, Content: content})

	respBody, err := c.doRequest(ctx, "POST", "/send-message", reqBody)
	if err != nil {
		return nil, err
	}

	var resp sendMessageResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("send rejected: %s", resp.Error)
	}

	result := &SendResult{ID: resp.ID, NewRoomName: resp.NewRoomName}
	if result.ID == "" && resp.Message != nil {
		result.ID = resp.Message.ID
	}
	return result, nil
}

// roomKeyResponse is the key-registry fetch response.
type roomKeyResponse struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
}

// FetchRoomKey returns the registry's exported key for a room, or ""
// when the registry holds none.
func (c *Client) FetchRoomKey(ctx context.Context, roomID string) (string, error) {
	respBody, err := c.doRequest(ctx, "GET", "/room-key/"+roomID, nil)
	if err != nil {
		return "", err
	}

	var resp roomKeyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", nil
	}
	return resp.Key, nil
}

// UploadRoomKey publishes a room key to the registry so other members
// can fetch it.
func (c *Client) UploadRoomKey(ctx context.Context, roomID, key string) error {
	reqBody, _ := json.Marshal(map[string]string{"roomId": roomID, "key": key})
	_, err := c.doRequest(ctx, "POST", "/room-key", reqBody)
	return err
}

// NotifyMention notifies a mentioned user about a message. Best-effort;
// callers log and ignore failures.
func (c *Client) NotifyMention(ctx context.Context, roomID, mentionedUser, messageID string) error {
	reqBody, _ := json.Marshal(map[string]string{
		"roomId":        roomID,
		"mentionedUser": mentionedUser,
		"messageId":     messageID,
	})
	_, err := c.doRequest(ctx, "POST", "/notify-mention", reqBody)
	return err
}

// EmitTyping sends the local user's typing state. Best-effort; failures
// are logged here and swallowed.
func (c *Client) EmitTyping(ctx context.Context, ev models.TypingEvent) {
	reqBody, _ := json.Marshal(ev)
	if _, err := c.doRequest(ctx, "POST", "/typing", reqBody); err != nil {
		c.log.Warn().Err(err).Str("room_id", ev.RoomID).Msg("typing emit failed")
	}
}

// ShareRoom invites another user into a room.
func (c *Client) ShareRoom(ctx context.Context, username, roomID string) error {
	reqBody, _ := json.Marshal(map[string]string{"username": username, "roomId": roomID})
	_, err := c.doRequest(ctx, "POST", "/share-room", reqBody)
	return err
}
