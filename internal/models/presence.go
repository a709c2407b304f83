package models

import "time"

// TypingEvent is the wire shape for typing presence, both emitted and
// received over the push channel.
type TypingEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// TypingEntry is a client-side record of a remote user currently typing.
type TypingEntry struct {
	UserID      string
	DisplayName string
	LastSeenAt  time.Time
}
