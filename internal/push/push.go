// Package push implements the websocket push-channel subscriber. It
// delivers envelopes in arrival order and reports disconnection to the
// caller; reconnection policy belongs to the transport's owner.
package push

import (
	"context"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/typow21/group-chat-gpt-frontend/internal/models"
)

// Subscriber consumes the per-(room, user) push stream.
type Subscriber struct {
	baseURL string
	log     zerolog.Logger
}

// NewSubscriber creates a Subscriber. baseURL may be an http(s) URL;
// the scheme is rewritten for websocket dialing.
func NewSubscriber(baseURL string, log zerolog.Logger) *Subscriber {
	return &Subscriber{baseURL: baseURL, log: log.With().Str("component", "push").Logger()}
}

// Run connects and delivers envelopes to onEvent until the context is
// cancelled or the connection drops. The returned error is the
// disconnection cause; a cancelled context returns ctx.Err().
func (s *Subscriber) Run(ctx context.Context, roomID, userID string, onEvent func(models.Envelope)) error {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("roomId", roomID)
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.log.Info().Str("room_id", roomID).Msg("push channel connected")

	// Unblock the read loop when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn().Err(err).Msg("push channel closed")
			return err
		}
		onEvent(env)
	}
}
