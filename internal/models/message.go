package models

// Message represents a single chat message as held by the session engine.
type Message struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Sender  string `json:"sender"`
	Pending bool   `json:"pending,omitempty"` // locally created, awaiting confirmation
	Seq     int64  `json:"seq,omitempty"`     // ordering key (unix ms at insertion)
}

// Envelope is a single push-channel event. Exactly one of Message or
// Typing is set, selected by Type.
type Envelope struct {
	Type    string       `json:"type"` // "message" or "typing"
	Message *Message     `json:"message,omitempty"`
	Typing  *TypingEvent `json:"typing,omitempty"`
}
