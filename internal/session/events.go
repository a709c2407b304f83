package session

import "sync"

// Signal is a cross-component notification the engine emits for the
// calling layer, replacing ad-hoc global event names.
type Signal interface{ isSignal() }

// RoomReady fires after a room snapshot has been applied.
type RoomReady struct{ RoomID string }

// RoomRenamed fires when a send response carried a room rename.
type RoomRenamed struct{ Name string }

// NotificationsRefresh fires after a mention notification landed, so a
// notification badge elsewhere can refresh.
type NotificationsRefresh struct{}

// SendRollback fires when a send failed: the optimistic echo was
// removed and Draft holds the exact text to restore into the composer.
type SendRollback struct {
	Draft string
	Err   error
}

// Disconnected fires when the push channel drops. The engine does not
// reconnect; the transport is an external collaborator.
type Disconnected struct{ Err error }

func (RoomReady) isSignal()            {}
func (RoomRenamed) isSignal()          {}
func (NotificationsRefresh) isSignal() {}
func (SendRollback) isSignal()         {}
func (Disconnected) isSignal()         {}

// Bus fans signals out to subscribers. Delivery is non-blocking; a
// subscriber that stops draining loses signals rather than stalling the
// engine.
type Bus struct {
	mu   sync.Mutex
	subs []chan Signal
}

// Subscribe returns a channel receiving all future signals.
func (b *Bus) Subscribe() <-chan Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Signal, 16)
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) publish(sig Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- sig:
		default:
		}
	}
}
