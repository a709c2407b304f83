// Package presence handles typing indicators: debounced emission of the
// local user's typing state and a TTL cache of remote typers that
// self-heals when "stop typing" events are lost.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/typow21/group-chat-gpt-frontend/internal/models"
)

const (
	// QuietPeriod is how long after the last keystroke the local user
	// is still considered typing.
	QuietPeriod = 2 * time.Second

	// EntryTTL is how long a remote typing entry survives without a
	// refresh.
	EntryTTL = 3 * time.Second

	// SweepInterval is the cadence of the expiry sweep.
	SweepInterval = time.Second
)

// EmitFunc delivers a typing event to the backend. Failures are the
// implementation's to log; emission is best-effort.
type EmitFunc func(ctx context.Context, ev models.TypingEvent)

// Notifier emits the local user's typing state, deduplicating repeated
// booleans and auto-stopping after a quiet period.
type Notifier struct {
	mu       sync.Mutex
	roomID   string
	userID   string
	username string
	emit     EmitFunc
	last     *bool
	quiet    *time.Timer
}

// NewNotifier creates a Notifier bound to a room and user identity.
func NewNotifier(roomID, userID, username string, emit EmitFunc) *Notifier {
	return &Notifier{roomID: roomID, userID: userID, username: username, emit: emit}
}

// Keystroke marks typing activity: emits a start (if not already
// emitted) and re-arms the quiet timer that will emit the stop.
func (n *Notifier) Keystroke() {
	n.mu.Lock()
	if n.quiet != nil {
		n.quiet.Stop()
	}
	n.quiet = time.AfterFunc(QuietPeriod, func() { n.SetTyping(false) })
	n.mu.Unlock()

	n.SetTyping(true)
}

// SetTyping emits the typing boolean unless it would repeat the last
// emitted value.
func (n *Notifier) SetTyping(isTyping bool) {
	n.mu.Lock()
	if n.last != nil && *n.last == isTyping {
		n.mu.Unlock()
		return
	}
	v := isTyping
	n.last = &v
	n.mu.Unlock()

	n.emit(context.Background(), models.TypingEvent{
		RoomID:   n.roomID,
		UserID:   n.userID,
		Username: n.username,
		IsTyping: isTyping,
	})
}

// Sent must be called synchronously when a message is sent: it stops
// the quiet timer and emits the stop immediately.
func (n *Notifier) Sent() {
	n.mu.Lock()
	if n.quiet != nil {
		n.quiet.Stop()
		n.quiet = nil
	}
	n.mu.Unlock()

	n.SetTyping(false)
}

// Stop cancels the quiet timer without emitting.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.quiet != nil {
		n.quiet.Stop()
		n.quiet = nil
	}
}

// Tracker records which remote users are currently typing, expiring
// entries that go stale.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]models.TypingEntry
	order   []string // user ids in first-observed order
	now     func() time.Time
	log     zerolog.Logger
	done    chan struct{}
	once    sync.Once
}

// NewTracker creates a Tracker using the real clock.
func NewTracker(log zerolog.Logger) *Tracker {
	return newTracker(log, time.Now)
}

func newTracker(log zerolog.Logger, now func() time.Time) *Tracker {
	return &Tracker{
		entries: make(map[string]models.TypingEntry),
		now:     now,
		log:     log.With().Str("component", "presence").Logger(),
		done:    make(chan struct{}),
	}
}

// Observe applies a remote typing event: upsert on start, remove on
// stop. Events keyed by the remote user id.
func (t *Tracker) Observe(ev models.TypingEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !ev.IsTyping {
		t.removeLocked(ev.UserID)
		return
	}

	if _, ok := t.entries[ev.UserID]; !ok {
		t.order = append(t.order, ev.UserID)
	}
	t.entries[ev.UserID] = models.TypingEntry{
		UserID:      ev.UserID,
		DisplayName: ev.Username,
		LastSeenAt:  t.now(),
	}
}

// Snapshot returns the currently-typing users, de-duplicated, in
// first-observed order.
func (t *Tracker) Snapshot() []models.TypingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.TypingEntry, 0, len(t.entries))
	for _, id := range t.order {
		if entry, ok := t.entries[id]; ok {
			out = append(out, entry)
		}
	}
	return out
}

// Reset clears all entries, e.g. on a room switch.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]models.TypingEntry)
	t.order = nil
}

// StartSweep runs the expiry sweep until Close is called. Entries older
// than EntryTTL are evicted; this recovers from lost stop events
// without the sender's cooperation.
func (t *Tracker) StartSweep() {
	go func() {
		ticker := time.NewTicker(SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.sweep()
			case <-t.done:
				return
			}
		}
	}()
}

// Close stops the sweep goroutine.
func (t *Tracker) Close() {
	t.once.Do(func() { close(t.done) })
}

func (t *Tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-EntryTTL)
	for id, entry := range t.entries {
		if entry.LastSeenAt.Before(cutoff) {
			t.log.Debug().Str("user_id", id).Msg("typing entry expired")
			t.removeLocked(id)
		}
	}
}

func (t *Tracker) removeLocked(userID string) {
	if _, ok := t.entries[userID]; !ok {
		return
	}
	delete(t.entries, userID)
	for i, id := range t.order {
		if id == userID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}
