// Package devserver is an in-memory implementation of the chat backend
// contracts, used for local development and integration tests. It is
// not a production server: no persistence, no real auth, a simulated
// AI bot.
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/typow21/group-chat-gpt-frontend/internal/cipher"
	"github.com/typow21/group-chat-gpt-frontend/internal/keystore"
	"github.com/typow21/group-chat-gpt-frontend/internal/mention"
	"github.com/typow21/group-chat-gpt-frontend/internal/models"
)

// BotReplyDelay is how long the simulated bot "thinks" before its
// reply is pushed.
const BotReplyDelay = 400 * time.Millisecond

// Server bundles the dev backend's handlers and state.
type Server struct {
	store *Store
	hub   *Hub
	codec *cipher.Codec
	log   zerolog.Logger
}

// NewServer creates a dev backend.
func NewServer(log zerolog.Logger) *Server {
	store := NewStore()
	return &Server{
		store: store,
		hub:   NewHub(log),
		codec: cipher.New(registryKeySource{store}, log),
		log:   log.With().Str("component", "devserver").Logger(),
	}
}

// Store exposes the in-memory state for seeding in main and tests.
func (s *Server) Store() *Store { return s.store }

// registryKeySource lets the dev bot decrypt room traffic with the key
// the clients registered, mirroring the "share key with server for AI"
// flow. It never generates keys.
type registryKeySource struct {
	store *Store
}

func (r registryKeySource) GetOrCreate(ctx context.Context, roomID string) ([]byte, error) {
	key := r.store.GetKey(roomID)
	if key == "" {
		return nil, fmt.Errorf("no key registered for room %s", roomID)
	}
	return keystore.Import(key)
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(metricsMiddleware)
	r.Use(securityHeaders)
	r.Use(maxBodySize(8 * 1024))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.health)

	r.Get("/room/{id}", s.getRoom)
	r.Post("/send-message", s.sendMessage)
	r.Get("/room-key/{roomId}", s.getRoomKey)
	r.Post("/room-key", s.putRoomKey)
	r.Post("/notify-mention", s.notifyMention)
	r.Post("/typing", s.typing)
	r.Post("/share-room", s.shareRoom)
	r.Get("/ws", s.hub.HandleWS)

	return r
}

// JSON sends a JSON response with the given status code.
func (s *Server) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (s *Server) Error(w http.ResponseWriter, status int, message string) {
	s.JSON(w, status, map[string]string{"error": message})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	room, ok := s.store.GetRoom(roomID)
	if !ok {
		s.Error(w, http.StatusNotFound, "room not found")
		return
	}
	s.JSON(w, http.StatusOK, room)
}

type sendMessageRequest struct {
	SenderID string `json:"senderId"`
	RoomID   string `json:"roomId"`
	Content  string `json:"content"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SenderID == "" || req.RoomID == "" {
		s.Error(w, http.StatusBadRequest, "senderId and roomId are required")
		return
	}
	if req.Content == "" {
		s.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > 4096 {
		s.Error(w, http.StatusUnprocessableEntity, "content too long (max 4096 bytes)")
		return
	}

	msg, err := s.store.AddMessage(req.RoomID, req.SenderID, req.Content)
	if err != nil {
		s.Error(w, http.StatusNotFound, err.Error())
		return
	}
	messagesPosted.Inc()

	s.hub.Broadcast(req.RoomID, models.Envelope{Type: "message", Message: &msg})

	s.maybeReplyAsBot(req.RoomID, req.Content)

	s.JSON(w, http.StatusCreated, map[string]interface{}{
		"id": msg.ID,
		"ts": msg.Seq,
	})
}

// maybeReplyAsBot pushes a canned bot reply when the message mentions
// one of the room's assistants. The reply goes out plaintext and only
// via the push channel, exercising the push-only confirmation path.
func (s *Server) maybeReplyAsBot(roomID, content string) {
	plaintext := s.codec.Decrypt(context.Background(), roomID, content)
	if plaintext == cipher.DecryptFailedText {
		return
	}

	roster := s.store.Assistants(roomID)
	mentioned := mention.ParseAll(plaintext)
	for _, name := range mentioned {
		for _, bot := range roster.Bots {
			if !strings.EqualFold(name, bot.Name) {
				continue
			}
			botName := bot.Name
			time.AfterFunc(BotReplyDelay, func() {
				reply, err := s.store.AddMessage(roomID, botName, "I hear you! (simulated reply)")
				if err != nil {
					return
				}
				s.hub.Broadcast(roomID, models.Envelope{Type: "message", Message: &reply})
			})
			return
		}
	}
}

func (s *Server) getRoomKey(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	key := s.store.GetKey(roomID)
	if key == "" {
		s.JSON(w, http.StatusOK, map[string]interface{}{"success": false})
		return
	}
	s.JSON(w, http.StatusOK, map[string]interface{}{"success": true, "key": key})
}

type roomKeyRequest struct {
	RoomID string `json:"roomId"`
	Key    string `json:"key"`
}

func (s *Server) putRoomKey(w http.ResponseWriter, r *http.Request) {
	var req roomKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RoomID == "" || req.Key == "" {
		s.Error(w, http.StatusBadRequest, "roomId and key are required")
		return
	}
	if _, err := keystore.Import(req.Key); err != nil {
		s.Error(w, http.StatusUnprocessableEntity, "invalid key material")
		return
	}

	applied := s.store.SetKey(req.RoomID, req.Key)
	if !applied {
		s.log.Debug().Str("room_id", req.RoomID).Msg("room key already registered, keeping first")
	}
	s.JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type notifyMentionRequest struct {
	RoomID        string `json:"roomId"`
	MentionedUser string `json:"mentionedUser"`
	MessageID     string `json:"messageId"`
}

func (s *Server) notifyMention(w http.ResponseWriter, r *http.Request) {
	var req notifyMentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.log.Info().
		Str("room_id", req.RoomID).
		Str("user", req.MentionedUser).
		Str("message_id", req.MessageID).
		Msg("mention notification")
	s.JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) typing(w http.ResponseWriter, r *http.Request) {
	var ev models.TypingEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if ev.RoomID == "" || ev.UserID == "" {
		s.Error(w, http.StatusBadRequest, "roomId and userId are required")
		return
	}
	typingEvents.Inc()

	s.hub.Broadcast(ev.RoomID, models.Envelope{Type: "typing", Typing: &ev})
	s.JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type shareRoomRequest struct {
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
}

func (s *Server) shareRoom(w http.ResponseWriter, r *http.Request) {
	var req shareRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.RoomID == "" {
		s.Error(w, http.StatusBadRequest, "username and roomId are required")
		return
	}
	if err := s.store.AddUserByName(req.RoomID, req.Username); err != nil {
		s.Error(w, http.StatusNotFound, err.Error())
		return
	}
	s.JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
