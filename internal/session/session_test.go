package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/typow21/group-chat-gpt-frontend/internal/api"
	"github.com/typow21/group-chat-gpt-frontend/internal/models"
)

// fakeBackend serves canned rooms with optional per-room fetch delay and
// records mention notifications.
type fakeBackend struct {
	mu       sync.Mutex
	rooms    map[string]*models.Room
	delays   map[string]time.Duration
	sendErr  error
	sendID   string
	renameTo string
	notified chan string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		rooms:    make(map[string]*models.Room),
		delays:   make(map[string]time.Duration),
		sendID:   "srv-1",
		notified: make(chan string, 8),
	}
}

func (b *fakeBackend) addRoom(id, name string, msgs ...models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms[id] = &models.Room{Name: name, Users: map[string]models.User{}, Messages: msgs}
}

func (b *fakeBackend) FetchRoom(ctx context.Context, roomID string) (*models.Room, error) {
	b.mu.Lock()
	delay := b.delays[roomID]
	room, ok := b.rooms[roomID]
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, errors.New("room not found")
	}
	snapshot := *room
	return &snapshot, nil
}

func (b *fakeBackend) SendMessage(ctx context.Context, senderID, roomID, content string) (*api.SendResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return nil, b.sendErr
	}
	return &api.SendResult{ID: b.sendID, NewRoomName: b.renameTo}, nil
}

func (b *fakeBackend) NotifyMention(ctx context.Context, roomID, mentionedUser, messageID string) error {
	b.notified <- mentionedUser
	return nil
}

// tagCodec marks ciphertext with a reversible prefix so tests can verify
// that bodies cross the wire encrypted and arrive decrypted.
type tagCodec struct{}

func (tagCodec) Encrypt(ctx context.Context, roomID, plaintext string) string {
	return "sealed:" + plaintext
}

func (tagCodec) Decrypt(ctx context.Context, roomID, body string) string {
	return strings.TrimPrefix(body, "sealed:")
}

func (tagCodec) DecryptBatch(ctx context.Context, roomID string, messages []models.Message) []models.Message {
	out := append([]models.Message(nil), messages...)
	for i := range out {
		out[i].Content = strings.TrimPrefix(out[i].Content, "sealed:")
	}
	return out
}

func noEmit(ctx context.Context, ev models.TypingEvent) {}

func newTestSession(t *testing.T, backend Backend) (*Session, <-chan Signal) {
	t.Helper()
	s := New(Identity{UserID: "u1", Username: "alice"}, backend, tagCodec{}, noEmit, zerolog.Nop())
	t.Cleanup(s.Close)
	return s, s.Events()
}

func waitSignal[T Signal](t *testing.T, signals <-chan Signal) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case sig := <-signals:
			if want, ok := sig.(T); ok {
				return want
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestSendThenEchoYieldsOneMessage(t *testing.T) {
	backend := newFakeBackend()
	backend.addRoom("room-1", "general")
	sess, signals := newTestSession(t, backend)

	sess.SwitchRoom(context.Background(), "room-1")
	waitSignal[RoomReady](t, signals)

	if err := sess.Send(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	// Pending echo is visible until the push echo retires it.
	msgs := sess.Messages()
	if len(msgs) != 1 || !msgs[0].Pending || msgs[0].Content != "hello" {
		t.Fatalf("expected one pending echo, got %+v", msgs)
	}
	if !strings.HasPrefix(msgs[0].ID, TempIDPrefix) {
		t.Fatalf("echo should carry a temporary id, got %q", msgs[0].ID)
	}

	sess.HandlePush(context.Background(), models.Envelope{
		Type:    "message",
		Message: &models.Message{ID: "srv-1", Sender: "u1", Content: "sealed:hello"},
	})

	msgs = sess.Messages()
	if len(msgs) != 1 {
		t.Fatalf("echo must replace the pending entry, got %+v", msgs)
	}
	if msgs[0].ID != "srv-1" || msgs[0].Pending || msgs[0].Content != "hello" {
		t.Fatalf("unexpected reconciled message: %+v", msgs[0])
	}
}

func TestSendFailureRollsBackAndRestoresDraft(t *testing.T) {
	backend := newFakeBackend()
	backend.addRoom("room-1", "general")
	backend.sendErr = errors.New("network down")
	sess, signals := newTestSession(t, backend)

	sess.SwitchRoom(context.Background(), "room-1")
	waitSignal[RoomReady](t, signals)

	if err := sess.Send(context.Background(), "  important text  "); err == nil {
		t.Fatal("expected send error")
	}

	if msgs := sess.Messages(); len(msgs) != 0 {
		t.Fatalf("failed echo should be rolled back, got %+v", msgs)
	}

	rollback := waitSignal[SendRollback](t, signals)
	if rollback.Draft != "important text" {
		t.Fatalf("expected trimmed draft restored, got %q", rollback.Draft)
	}
	if rollback.Err == nil {
		t.Fatal("rollback should carry the send error")
	}
}

func TestSendEmptyIsIgnored(t *testing.T) {
	backend := newFakeBackend()
	backend.addRoom("room-1", "general")
	sess, signals := newTestSession(t, backend)

	sess.SwitchRoom(context.Background(), "room-1")
	waitSignal[RoomReady](t, signals)

	if err := sess.Send(context.Background(), "   \n\t "); err != nil {
		t.Fatal(err)
	}
	if msgs := sess.Messages(); len(msgs) != 0 {
		t.Fatalf("whitespace-only send should be a no-op, got %+v", msgs)
	}
}

func TestSendNotifiesMentions(t *testing.T) {
	backend := newFakeBackend()
	backend.addRoom("room-1", "general")
	sess, signals := newTestSession(t, backend)

	sess.SwitchRoom(context.Background(), "room-1")
	waitSignal[RoomReady](t, signals)

	if err := sess.Send(context.Background(), "hi @bob and @chatgpt"); err != nil {
		t.Fatal(err)
	}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-backend.notified:
			got[name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("mention notifications missing, got %v", got)
		}
	}
	if !got["bob"] || !got["chatgpt"] {
		t.Fatalf("expected bob and chatgpt notified, got %v", got)
	}

	waitSignal[NotificationsRefresh](t, signals)
}

func TestSendSurfacesRoomRename(t *testing.T) {
	backend := newFakeBackend()
	backend.addRoom("room-1", "general")
	backend.renameTo = "sprint planning"
	sess, signals := newTestSession(t, backend)

	sess.SwitchRoom(context.Background(), "room-1")
	waitSignal[RoomReady](t, signals)

	if err := sess.Send(context.Background(), "kickoff"); err != nil {
		t.Fatal(err)
	}
	renamed := waitSignal[RoomRenamed](t, signals)
	if renamed.Name != "sprint planning" {
		t.Fatalf("expected rename signal, got %+v", renamed)
	}
}

func TestSwitchRoomDiscardsSlowStaleSnapshot(t *testing.T) {
	backend := newFakeBackend()
	backend.addRoom("room-a", "alpha", models.Message{ID: "a1", Sender: "u2", Content: "sealed:from alpha"})
	backend.addRoom("room-b", "beta", models.Message{ID: "b1", Sender: "u2", Content: "sealed:from beta"})
	backend.delays["room-a"] = 300 * time.Millisecond
	sess, signals := newTestSession(t, backend)

	ctx := context.Background()
	sess.SwitchRoom(ctx, "room-a")
	sess.SwitchRoom(ctx, "room-b")

	ready := waitSignal[RoomReady](t, signals)
	if ready.RoomID != "room-b" {
		t.Fatalf("expected room-b ready first, got %+v", ready)
	}

	// Let room-a's slow fetch complete; its snapshot must be dropped.
	time.Sleep(400 * time.Millisecond)

	if name := sess.RoomName(); name != "beta" {
		t.Fatalf("stale snapshot overwrote the room, name=%q", name)
	}
	msgs := sess.Messages()
	if len(msgs) != 1 || msgs[0].ID != "b1" || msgs[0].Content != "from beta" {
		t.Fatalf("expected only room-b messages, got %+v", msgs)
	}
}

func TestSwitchRoomClearsTypingState(t *testing.T) {
	backend := newFakeBackend()
	backend.addRoom("room-a", "alpha")
	backend.addRoom("room-b", "beta")
	sess, signals := newTestSession(t, backend)

	ctx := context.Background()
	sess.SwitchRoom(ctx, "room-a")
	waitSignal[RoomReady](t, signals)

	sess.HandlePush(ctx, models.Envelope{
		Type:   "typing",
		Typing: &models.TypingEvent{RoomID: "room-a", UserID: "u2", Username: "bob", IsTyping: true},
	})
	if len(sess.Typing()) != 1 {
		t.Fatal("typing entry not recorded")
	}

	sess.SwitchRoom(ctx, "room-b")
	if len(sess.Typing()) != 0 {
		t.Fatal("typing state leaked across a room switch")
	}
}

func TestHandlePushIgnoresOwnTyping(t *testing.T) {
	backend := newFakeBackend()
	backend.addRoom("room-1", "general")
	sess, signals := newTestSession(t, backend)

	sess.SwitchRoom(context.Background(), "room-1")
	waitSignal[RoomReady](t, signals)

	sess.HandlePush(context.Background(), models.Envelope{
		Type:   "typing",
		Typing: &models.TypingEvent{RoomID: "room-1", UserID: "u1", Username: "alice", IsTyping: true},
	})
	if len(sess.Typing()) != 0 {
		t.Fatal("session must not show itself as typing")
	}
}

func TestHandlePushMessageClearsSenderTyping(t *testing.T) {
	backend := newFakeBackend()
	backend.addRoom("room-1", "general")
	sess, signals := newTestSession(t, backend)

	ctx := context.Background()
	sess.SwitchRoom(ctx, "room-1")
	waitSignal[RoomReady](t, signals)

	sess.HandlePush(ctx, models.Envelope{
		Type:   "typing",
		Typing: &models.TypingEvent{UserID: "u2", Username: "bob", IsTyping: true},
	})
	sess.HandlePush(ctx, models.Envelope{
		Type:    "message",
		Message: &models.Message{ID: "srv-2", Sender: "u2", Content: "sealed:done typing"},
	})

	if len(sess.Typing()) != 0 {
		t.Fatal("a delivered message should clear its sender's typing state")
	}
}

func TestRoomLoadDecryptsHistory(t *testing.T) {
	backend := newFakeBackend()
	backend.addRoom("room-1", "general",
		models.Message{ID: "m1", Sender: "u2", Content: "sealed:first"},
		models.Message{ID: "m2", Sender: "u3", Content: "plain history"},
	)
	sess, signals := newTestSession(t, backend)

	sess.SwitchRoom(context.Background(), "room-1")
	waitSignal[RoomReady](t, signals)

	msgs := sess.Messages()
	if len(msgs) != 2 || msgs[0].Content != "first" || msgs[1].Content != "plain history" {
		t.Fatalf("history not decrypted on load: %+v", msgs)
	}
}

func TestDisconnectedSignal(t *testing.T) {
	backend := newFakeBackend()
	sess, signals := newTestSession(t, backend)

	cause := errors.New("socket closed")
	sess.Disconnected(cause)

	sig := waitSignal[Disconnected](t, signals)
	if !errors.Is(sig.Err, cause) {
		t.Fatalf("expected cause surfaced, got %v", sig.Err)
	}
}

func TestAddAI(t *testing.T) {
	backend := newFakeBackend()
	sess, _ := newTestSession(t, backend)

	tests := []struct {
		draft string
		want  string
	}{
		{"", "@chatgpt"},
		{"what is go", "@chatgpt what is go"},
		{"@chatgpt already here", "@chatgpt already here"},
		{"tell me @ChatGPT please", "@chatgpt tell me please"},
		{"@chatgpt @chatgpt doubled", "@chatgpt doubled"},
	}
	for _, tt := range tests {
		if got := sess.AddAI(tt.draft); got != tt.want {
			t.Errorf("AddAI(%q) = %q, want %q", tt.draft, got, tt.want)
		}
	}
}

func TestTempIDsAreUniqueAndPrefixed(t *testing.T) {
	backend := newFakeBackend()
	sess, _ := newTestSession(t, backend)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := sess.newTempID()
		if !strings.HasPrefix(id, TempIDPrefix) {
			t.Fatalf("temp id missing prefix: %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate temp id: %q", id)
		}
		seen[id] = true
	}
}
