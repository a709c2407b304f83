package session

import (
	"strings"

	"github.com/typow21/group-chat-gpt-frontend/internal/models"
)

// TempIDPrefix marks locally-generated message ids. A pending entry
// keeps its temporary id until the server's echo retires it.
const TempIDPrefix = "tmp-"

// State is the reconciler's complete room state. Reduce is a pure
// function over it; all IO lives in Session.
type State struct {
	RoomID   string
	RoomName string
	Users    map[string]models.User
	Roster   models.BotRoster
	Messages []models.Message

	// Drafts correlates temporary ids with the original plaintext so a
	// failed send can restore the composer.
	Drafts map[string]string
}

// NewState returns an empty state.
func NewState() State {
	return State{Drafts: make(map[string]string)}
}

// Event is a typed input to the reducer.
type Event interface{ isEvent() }

// RoomSwitched clears all room state before the new room loads. The
// reset is what prevents cross-room bleed-through.
type RoomSwitched struct{ RoomID string }

// RoomLoaded applies a fetched room snapshot. Snapshots for a room the
// state has already left are discarded.
type RoomLoaded struct {
	RoomID   string
	Name     string
	Users    map[string]models.User
	Roster   models.BotRoster
	Messages []models.Message
}

// SendRequested appends the optimistic local echo.
type SendRequested struct {
	TempID  string
	Sender  string
	Content string
	Seq     int64
}

// SendConfirmed records that the network accepted the send. The pending
// entry stays visible until the push echo retires it; only the draft
// correlation is released.
type SendConfirmed struct{ TempID string }

// SendFailed rolls back the optimistic echo.
type SendFailed struct{ TempID string }

// PushReceived merges an authoritative message from the push channel.
type PushReceived struct{ Message models.Message }

// TypingObserved is carried on the same event stream for completeness;
// typing entries are owned by the presence tracker, so it does not
// touch message state.
type TypingObserved struct{ Event models.TypingEvent }

func (RoomSwitched) isEvent()   {}
func (RoomLoaded) isEvent()     {}
func (SendRequested) isEvent()  {}
func (SendConfirmed) isEvent()  {}
func (SendFailed) isEvent()     {}
func (PushReceived) isEvent()   {}
func (TypingObserved) isEvent() {}

// Reduce applies one event and returns the next state. The input state
// is never mutated.
func Reduce(s State, ev Event) State {
	switch ev := ev.(type) {
	case RoomSwitched:
		next := NewState()
		next.RoomID = ev.RoomID
		return next

	case RoomLoaded:
		if ev.RoomID != s.RoomID {
			return s // stale response from a superseded room
		}
		next := s
		next.RoomName = ev.Name
		next.Users = ev.Users
		next.Roster = ev.Roster
		next.Messages = append([]models.Message(nil), ev.Messages...)
		return next

	case SendRequested:
		next := s
		next.Messages = append(copyMessages(s.Messages), models.Message{
			ID:      ev.TempID,
			Content: ev.Content,
			Sender:  ev.Sender,
			Pending: true,
			Seq:     ev.Seq,
		})
		next.Drafts = copyDrafts(s.Drafts)
		next.Drafts[ev.TempID] = ev.Content
		return next

	case SendConfirmed:
		next := s
		next.Drafts = copyDrafts(s.Drafts)
		delete(next.Drafts, ev.TempID)
		return next

	case SendFailed:
		next := s
		next.Messages = removeByID(s.Messages, ev.TempID)
		next.Drafts = copyDrafts(s.Drafts)
		delete(next.Drafts, ev.TempID)
		return next

	case PushReceived:
		// The dedup key is sender identity: the temporary id is local
		// and never matches the server id. Any pending entry from the
		// same sender is retired in the same step as the insertion.
		next := s
		next.Messages = make([]models.Message, 0, len(s.Messages)+1)
		next.Drafts = copyDrafts(s.Drafts)
		for _, msg := range s.Messages {
			if msg.Pending && msg.Sender == ev.Message.Sender && strings.HasPrefix(msg.ID, TempIDPrefix) {
				delete(next.Drafts, msg.ID)
				continue
			}
			next.Messages = append(next.Messages, msg)
		}
		confirmed := ev.Message
		confirmed.Pending = false
		next.Messages = append(next.Messages, confirmed)
		return next

	case TypingObserved:
		return s
	}
	return s
}

func copyMessages(msgs []models.Message) []models.Message {
	return append([]models.Message(nil), msgs...)
}

func copyDrafts(drafts map[string]string) map[string]string {
	out := make(map[string]string, len(drafts))
	for k, v := range drafts {
		out[k] = v
	}
	return out
}

func removeByID(msgs []models.Message, id string) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.ID == id {
			continue
		}
		out = append(out, msg)
	}
	return out
}
