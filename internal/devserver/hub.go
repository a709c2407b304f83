package devserver

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/typow21/group-chat-gpt-frontend/internal/models"
)

// Hub fans push envelopes out to the websocket subscribers of each
// room.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHub creates an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "hub").Logger(),
	}
}

// HandleWS upgrades a push-channel subscription. The connection is
// read-only from the client's perspective; the read loop exists to
// detect the close.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		http.Error(w, `{"error":"roomId is required"}`, http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*websocket.Conn]bool)
	}
	h.rooms[roomID][conn] = true
	h.mu.Unlock()
	pushConnections.Inc()

	h.log.Info().Str("room_id", roomID).Msg("push subscriber connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.rooms[roomID], conn)
	h.mu.Unlock()
	pushConnections.Dec()
	conn.Close()
}

// Broadcast delivers an envelope to every subscriber of a room.
// Connections that fail to write are dropped.
func (h *Hub) Broadcast(roomID string, env models.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.rooms[roomID] {
		if err := conn.WriteJSON(env); err != nil {
			h.log.Warn().Err(err).Str("room_id", roomID).Msg("dropping push subscriber")
			conn.Close()
			delete(h.rooms[roomID], conn)
		}
	}
}
