package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/typow21/group-chat-gpt-frontend/internal/cipher"
	"github.com/typow21/group-chat-gpt-frontend/internal/keystore"
	"github.com/typow21/group-chat-gpt-frontend/internal/models"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestGetRoom(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Store().AddUser(GlobalRoom, models.User{ID: "u1", Username: "alice"})

	resp, err := http.Get(ts.URL + "/room/" + GlobalRoom)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var room models.Room
	decodeJSON(t, resp, &room)
	if room.Name != "global" || room.Users["u1"].Username != "alice" {
		t.Fatalf("unexpected room payload: %+v", room)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/room/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSendMessage(t *testing.T) {
	srv, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/send-message", map[string]string{
		"senderId": "u1",
		"roomId":   GlobalRoom,
		"content":  "hello from the test",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var result struct {
		ID string `json:"id"`
		TS int64  `json:"ts"`
	}
	decodeJSON(t, resp, &result)
	if result.ID == "" || result.TS == 0 {
		t.Fatalf("expected id and ts, got %+v", result)
	}

	room, _ := srv.Store().GetRoom(GlobalRoom)
	if len(room.Messages) != 1 || room.Messages[0].ID != result.ID {
		t.Fatalf("message not stored: %+v", room.Messages)
	}
}

func TestSendMessageValidation(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"missing sender", map[string]string{"roomId": GlobalRoom, "content": "x"}, http.StatusBadRequest},
		{"missing room", map[string]string{"senderId": "u1", "content": "x"}, http.StatusBadRequest},
		{"empty content", map[string]string{"senderId": "u1", "roomId": GlobalRoom}, http.StatusBadRequest},
		{"unknown room", map[string]string{"senderId": "u1", "roomId": "nope", "content": "x"}, http.StatusNotFound},
		{"oversize content", map[string]string{"senderId": "u1", "roomId": GlobalRoom, "content": strings.Repeat("a", 5000)}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/send-message", tt.body)
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestRoomKeyLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	// No key yet.
	resp, err := http.Get(ts.URL + "/room-key/" + GlobalRoom)
	if err != nil {
		t.Fatal(err)
	}
	var absent struct {
		Success bool `json:"success"`
	}
	decodeJSON(t, resp, &absent)
	if absent.Success {
		t.Fatal("expected success=false before registration")
	}

	key, _ := keystore.Generate()
	exported := keystore.Export(key)

	resp = postJSON(t, ts.URL+"/room-key", map[string]string{"roomId": GlobalRoom, "key": exported})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/room-key/" + GlobalRoom)
	if err != nil {
		t.Fatal(err)
	}
	var fetched struct {
		Success bool   `json:"success"`
		Key     string `json:"key"`
	}
	decodeJSON(t, resp, &fetched)
	if !fetched.Success || fetched.Key != exported {
		t.Fatalf("expected registered key back, got %+v", fetched)
	}

	// First write wins: a second key for the same room is ignored.
	other, _ := keystore.Generate()
	resp = postJSON(t, ts.URL+"/room-key", map[string]string{"roomId": GlobalRoom, "key": keystore.Export(other)})
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/room-key/" + GlobalRoom)
	if err != nil {
		t.Fatal(err)
	}
	decodeJSON(t, resp, &fetched)
	if fetched.Key != exported {
		t.Fatal("second registration overwrote the first key")
	}
}

func TestRoomKeyRejectsInvalidMaterial(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/room-key", map[string]string{"roomId": GlobalRoom, "key": "not-a-key"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestTypingValidation(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/typing", map[string]interface{}{"roomId": GlobalRoom})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without userId, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/typing", map[string]interface{}{
		"roomId": GlobalRoom, "userId": "u1", "username": "alice", "isTyping": true,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestShareRoom(t *testing.T) {
	srv, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/share-room", map[string]string{"username": "bob", "roomId": GlobalRoom})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	room, _ := srv.Store().GetRoom(GlobalRoom)
	if room.Users["bob"].Username != "bob" {
		t.Fatalf("shared user not added: %+v", room.Users)
	}
}

func TestPushBroadcastOnSend(t *testing.T) {
	_, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?roomId=" + GlobalRoom + "&userId=u2"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Give the hub a beat to register the connection.
	time.Sleep(50 * time.Millisecond)

	resp := postJSON(t, ts.URL+"/send-message", map[string]string{
		"senderId": "u1", "roomId": GlobalRoom, "content": "ping",
	})
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env models.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "message" || env.Message == nil || env.Message.Content != "ping" {
		t.Fatalf("unexpected push envelope: %+v", env)
	}
}

func TestBotRepliesToMention(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Store().SetAssistants(GlobalRoom, []models.Bot{{Name: models.DefaultBotName}})

	// Register the room key so the bot can read encrypted traffic.
	key, _ := keystore.Generate()
	exported := keystore.Export(key)
	resp := postJSON(t, ts.URL+"/room-key", map[string]string{"roomId": GlobalRoom, "key": exported})
	resp.Body.Close()

	codec := cipher.New(staticKey(key), zerolog.Nop())
	wire := codec.Encrypt(context.Background(), GlobalRoom, "hey @"+models.DefaultBotName+" what's up")

	resp = postJSON(t, ts.URL+"/send-message", map[string]string{
		"senderId": "u1", "roomId": GlobalRoom, "content": wire,
	})
	resp.Body.Close()

	deadline := time.Now().Add(BotReplyDelay + 2*time.Second)
	for time.Now().Before(deadline) {
		room, _ := srv.Store().GetRoom(GlobalRoom)
		if len(room.Messages) == 2 {
			if room.Messages[1].Sender != models.DefaultBotName {
				t.Fatalf("expected bot reply, got %+v", room.Messages[1])
			}
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("bot never replied to its mention")
}

func TestBotIgnoresUnreadableTraffic(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Store().SetAssistants(GlobalRoom, []models.Bot{{Name: models.DefaultBotName}})
	// No key registered: encrypted traffic is opaque to the bot.

	resp := postJSON(t, ts.URL+"/send-message", map[string]string{
		"senderId": "u1", "roomId": GlobalRoom,
		"content": cipher.EncryptedPrefix + "b2ZmbGluZQ==",
	})
	resp.Body.Close()

	time.Sleep(BotReplyDelay + 200*time.Millisecond)
	room, _ := srv.Store().GetRoom(GlobalRoom)
	if len(room.Messages) != 1 {
		t.Fatalf("bot replied to traffic it cannot read: %+v", room.Messages)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/room/abc-123", "/room/:id"},
		{"/room-key/abc-123", "/room-key/:id"},
		{"/send-message", "/send-message"},
		{"/room/", "/room/"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// staticKey is a cipher.KeySource serving one fixed key.
type staticKey []byte

func (k staticKey) GetOrCreate(ctx context.Context, roomID string) ([]byte, error) {
	if len(k) == 0 {
		return nil, fmt.Errorf("no key")
	}
	return k, nil
}
