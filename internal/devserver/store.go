package devserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/typow21/group-chat-gpt-frontend/internal/models"
)

// GlobalRoom is the ID of the seeded default room.
const GlobalRoom = "00000000-0000-0000-0000-000000000001"

// Store holds all dev-server state in memory.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*roomState
}

type roomState struct {
	name       string
	users      map[string]models.User
	assistants []models.Bot
	messages   []models.Message
	key        string
}

// NewStore creates a Store seeded with the global room.
func NewStore() *Store {
	s := &Store{rooms: make(map[string]*roomState)}
	s.rooms[GlobalRoom] = &roomState{
		name:  "global",
		users: make(map[string]models.User),
	}
	return s
}

// CreateRoom creates a room and returns its id.
func (s *Store) CreateRoom(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	s.rooms[id] = &roomState{name: name, users: make(map[string]models.User)}
	return id
}

// GetRoom returns a snapshot copy of a room.
func (s *Store) GetRoom(id string) (models.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return models.Room{}, false
	}

	users := make(map[string]models.User, len(room.users))
	for k, v := range room.users {
		users[k] = v
	}
	return models.Room{
		Name:       room.name,
		Users:      users,
		Assistants: append([]models.Bot(nil), room.assistants...),
		Messages:   append([]models.Message(nil), room.messages...),
	}, true
}

// AddUser registers a participant in a room, creating membership on
// first contact (the dev server has no real signup flow).
func (s *Store) AddUser(roomID string, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s not found", roomID)
	}
	room.users[user.ID] = user
	return nil
}

// AddUserByName registers a username without an id (share-room flow).
func (s *Store) AddUserByName(roomID, username string) error {
	return s.AddUser(roomID, models.User{ID: username, Username: username})
}

// SetAssistants sets a room's bot roster.
func (s *Store) SetAssistants(roomID string, bots []models.Bot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		room.assistants = bots
	}
}

// Assistants returns a room's bot roster, resolved to the normalized
// form.
func (s *Store) Assistants(roomID string) models.BotRoster {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		return models.ResolveBotRoster(room.assistants)
	}
	return models.ResolveBotRoster(nil)
}

// AddMessage appends a message to a room, assigning id and ordering
// key.
func (s *Store) AddMessage(roomID, sender, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.Message{}, fmt.Errorf("room %s not found", roomID)
	}

	msg := models.Message{
		ID:      ulid.Make().String(),
		Content: content,
		Sender:  sender,
		Seq:     time.Now().UnixMilli(),
	}
	room.messages = append(room.messages, msg)
	return msg, nil
}

// SetKey stores a room key; the first write wins. Returns whether the
// write was applied.
func (s *Store) SetKey(roomID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	if room.key != "" {
		return false
	}
	room.key = key
	return true
}

// GetKey returns a room's key, or "" when none is registered.
func (s *Store) GetKey(roomID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		return room.key
	}
	return ""
}

// Rename changes a room's display name.
func (s *Store) Rename(roomID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		room.name = name
	}
}
