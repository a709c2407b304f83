package models

// DefaultBotName is the assistant every room can address even when the
// backend sends no explicit roster.
const DefaultBotName = "chatgpt"

// User represents a room participant.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Bot represents an AI assistant attached to a room.
type Bot struct {
	Name string `json:"name"`
}

// Room is the room snapshot returned by the backend.
type Room struct {
	Name       string          `json:"name"`
	Users      map[string]User `json:"users"`
	Assistants []Bot           `json:"assistants,omitempty"`
	Messages   []Message       `json:"messages"`
}

// BotRoster is the normalized bot list for a room. Implicit is true when
// the backend sent no roster and the default singleton was substituted.
type BotRoster struct {
	Bots     []Bot
	Implicit bool
}

// ResolveBotRoster normalizes the snapshot's assistants array. An absent
// or empty array means the implicit default bot.
func ResolveBotRoster(assistants []Bot) BotRoster {
	if len(assistants) == 0 {
		return BotRoster{Bots: []Bot{{Name: DefaultBotName}}, Implicit: true}
	}
	bots := make([]Bot, len(assistants))
	copy(bots, assistants)
	return BotRoster{Bots: bots}
}

// Names returns the roster's bot names in order.
func (r BotRoster) Names() []string {
	names := make([]string, len(r.Bots))
	for i, b := range r.Bots {
		names[i] = b.Name
	}
	return names
}
