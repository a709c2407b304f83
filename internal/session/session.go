// Package session implements the real-time chat session engine: it
// reconciles optimistic sends, REST confirmations and push deliveries
// into one ordered message list, and owns the room's typing presence
// and mention candidate set.
package session

import (
	"context"
	"crypto/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/typow21/group-chat-gpt-frontend/internal/api"
	"github.com/typow21/group-chat-gpt-frontend/internal/mention"
	"github.com/typow21/group-chat-gpt-frontend/internal/models"
	"github.com/typow21/group-chat-gpt-frontend/internal/presence"
)

// Identity is the explicit session context: who the engine acts as.
// The engine never reaches into ambient storage for identity.
type Identity struct {
	UserID   string
	Username string
}

// Backend is what the engine needs from the REST layer; implemented by
// api.Client.
type Backend interface {
	FetchRoom(ctx context.Context, roomID string) (*models.Room, error)
	SendMessage(ctx context.Context, senderID, roomID, content string) (*api.SendResult, error)
	NotifyMention(ctx context.Context, roomID, mentionedUser, messageID string) error
}

// Codec encrypts and decrypts message bodies.
type Codec interface {
	Encrypt(ctx context.Context, roomID, plaintext string) string
	Decrypt(ctx context.Context, roomID, body string) string
	DecryptBatch(ctx context.Context, roomID string, messages []models.Message) []models.Message
}

// Session drives one user's chat session across rooms. All mutation
// happens through events applied under the session lock; handlers run
// to completion before the next event is processed.
type Session struct {
	mu    sync.Mutex
	state State

	identity Identity
	backend  Backend
	codec    Codec
	emit     presence.EmitFunc
	log      zerolog.Logger

	typing   *presence.Tracker
	notifier *presence.Notifier

	bus Bus

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates a Session for the given identity.
func New(identity Identity, backend Backend, codec Codec, emit presence.EmitFunc, log zerolog.Logger) *Session {
	s := &Session{
		state:    NewState(),
		identity: identity,
		backend:  backend,
		codec:    codec,
		emit:     emit,
		log:      log.With().Str("component", "session").Logger(),
		typing:   presence.NewTracker(log),
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
	s.typing.StartSweep()
	return s
}

// Events returns a subscription to the engine's signals.
func (s *Session) Events() <-chan Signal {
	return s.bus.Subscribe()
}

// Close releases background resources.
func (s *Session) Close() {
	s.typing.Close()
	if s.notifier != nil {
		s.notifier.Stop()
	}
}

// SwitchRoom clears all room state synchronously, then fetches the new
// room's snapshot in the background. The state is reset before the
// fetch is issued so a stale response from a prior room can never land
// in the new room's state.
func (s *Session) SwitchRoom(ctx context.Context, roomID string) {
	s.mu.Lock()
	s.state = Reduce(s.state, RoomSwitched{RoomID: roomID})
	if s.notifier != nil {
		s.notifier.Stop()
	}
	s.notifier = presence.NewNotifier(roomID, s.identity.UserID, s.identity.Username, s.emit)
	s.typing.Reset()
	s.mu.Unlock()

	go s.loadRoom(ctx, roomID)
}

// loadRoom fetches and applies a room snapshot. The target room id was
// captured at initiation; a response for a room the session has since
// left is discarded.
func (s *Session) loadRoom(ctx context.Context, roomID string) {
	room, err := s.backend.FetchRoom(ctx, roomID)
	if err != nil {
		s.log.Error().Err(err).Str("room_id", roomID).Msg("room fetch failed")
		return
	}

	decrypted := s.codec.DecryptBatch(ctx, roomID, room.Messages)
	roster := models.ResolveBotRoster(room.Assistants)

	s.mu.Lock()
	if s.state.RoomID != roomID {
		s.mu.Unlock()
		s.log.Debug().Str("room_id", roomID).Msg("discarding stale room snapshot")
		return
	}
	s.state = Reduce(s.state, RoomLoaded{
		RoomID:   roomID,
		Name:     room.Name,
		Users:    room.Users,
		Roster:   roster,
		Messages: decrypted,
	})
	s.mu.Unlock()

	s.bus.publish(RoomReady{RoomID: roomID})
}

// Send submits a message: optimistic echo, encrypt, REST send, mention
// notifications. Empty input after trimming is silently ignored. On
// failure the echo is rolled back and the original text is surfaced for
// the composer to restore.
func (s *Session) Send(ctx context.Context, text string) error {
	plaintext := strings.TrimSpace(text)
	if plaintext == "" {
		return nil
	}

	s.mu.Lock()
	roomID := s.state.RoomID
	notifier := s.notifier
	s.mu.Unlock()

	// Typing stop goes out before the message itself.
	if notifier != nil {
		notifier.Sent()
	}

	tempID := s.newTempID()
	s.apply(SendRequested{
		TempID:  tempID,
		Sender:  s.identity.UserID,
		Content: plaintext,
		Seq:     time.Now().UnixMilli(),
	})

	mentioned := mention.ParseAll(plaintext)

	wire := s.codec.Encrypt(ctx, roomID, plaintext)

	result, err := s.backend.SendMessage(ctx, s.identity.UserID, roomID, wire)
	if err != nil {
		s.mu.Lock()
		draft := s.state.Drafts[tempID]
		s.state = Reduce(s.state, SendFailed{TempID: tempID})
		s.mu.Unlock()
		s.bus.publish(SendRollback{Draft: draft, Err: err})
		return err
	}

	s.apply(SendConfirmed{TempID: tempID})

	if result.NewRoomName != "" {
		s.bus.publish(RoomRenamed{Name: result.NewRoomName})
	}

	for _, name := range mentioned {
		go s.notifyMention(roomID, name, result.ID)
	}

	return nil
}

// notifyMention is best-effort: failure is logged, never retried, and
// never rolls back the send.
func (s *Session) notifyMention(roomID, name, messageID string) {
	if err := s.backend.NotifyMention(context.Background(), roomID, name, messageID); err != nil {
		s.log.Warn().Err(err).Str("user", name).Msg("mention notify failed")
		return
	}
	s.bus.publish(NotificationsRefresh{})
}

// HandlePush merges one push-channel envelope. Message deliveries are
// decrypted and applied in arrival order; typing events feed the
// presence tracker.
func (s *Session) HandlePush(ctx context.Context, env models.Envelope) {
	switch env.Type {
	case "message":
		if env.Message == nil {
			return
		}
		s.mu.Lock()
		roomID := s.state.RoomID
		s.mu.Unlock()

		msg := *env.Message
		msg.Content = s.codec.Decrypt(ctx, roomID, msg.Content)
		s.apply(PushReceived{Message: msg})

		// A delivered message supersedes its sender's typing state.
		s.typing.Observe(models.TypingEvent{UserID: msg.Sender, IsTyping: false})

	case "typing":
		if env.Typing == nil || env.Typing.UserID == s.identity.UserID {
			return
		}
		s.apply(TypingObserved{Event: *env.Typing})
		s.typing.Observe(*env.Typing)
	}
}

// Disconnected reports a dropped push channel to subscribers.
func (s *Session) Disconnected(err error) {
	s.bus.publish(Disconnected{Err: err})
}

// Keystroke records composer activity for typing presence.
func (s *Session) Keystroke() {
	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()
	if notifier != nil {
		notifier.Keystroke()
	}
}

// Messages returns a snapshot of the reconciled message list.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.state.Messages...)
}

// RoomName returns the current room's display name.
func (s *Session) RoomName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.RoomName
}

// Typing returns the currently-typing remote users.
func (s *Session) Typing() []models.TypingEntry {
	return s.typing.Snapshot()
}

// Candidates returns the room's mention candidates: bots first, then
// participants excluding the session user.
func (s *Session) Candidates() []mention.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := models.Room{Users: s.state.Users}
	return mention.CandidatesFromRoom(room, s.state.Roster, s.identity.UserID)
}

// AddAI inserts a single leading mention of the room's first bot into a
// draft, normalizing any existing mentions of that bot down to one
// leading occurrence. The transform touches draft text only.
func (s *Session) AddAI(draft string) string {
	s.mu.Lock()
	roster := s.state.Roster
	s.mu.Unlock()

	name := models.DefaultBotName
	if len(roster.Bots) > 0 {
		name = roster.Bots[0].Name
	}

	re := regexp.MustCompile(`(?i)\s*@` + regexp.QuoteMeta(name) + `\b\s*`)
	stripped := strings.TrimSpace(re.ReplaceAllString(draft, " "))
	return strings.TrimSpace("@" + name + " " + stripped)
}

func (s *Session) apply(ev Event) {
	s.mu.Lock()
	s.state = Reduce(s.state, ev)
	s.mu.Unlock()
}

// newTempID returns a prefixed, monotonic temporary message id.
func (s *Session) newTempID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy)
	return TempIDPrefix + id.String()
}
