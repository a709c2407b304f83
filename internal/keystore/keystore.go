// Package keystore manages the per-room symmetric key lifecycle:
// local cache, remote registry fetch, local generation with best-effort
// upload. Key material never leaves this package except to the cipher
// codec.
package keystore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the raw room key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Cache is the local room-key cache. Keys are stored exported (base64).
type Cache interface {
	Get(roomID string) (string, bool)
	Put(roomID, key string) error
}

// Registry is the remote key registry shared by room members.
type Registry interface {
	// FetchRoomKey returns the exported key for a room, or "" when the
	// registry has none.
	FetchRoomKey(ctx context.Context, roomID string) (string, error)
	UploadRoomKey(ctx context.Context, roomID, key string) error
}

// Store resolves room keys: cache, then registry, then fresh generation.
type Store struct {
	cache    Cache
	registry Registry
	log      zerolog.Logger
}

// New creates a Store over the given cache and registry.
func New(cache Cache, registry Registry, log zerolog.Logger) *Store {
	return &Store{
		cache:    cache,
		registry: registry,
		log:      log.With().Str("component", "keystore").Logger(),
	}
}

// GetOrCreate returns the room's key, resolving in order: local cache,
// remote registry, fresh generation. A generated key is cached and
// uploaded to the registry fire-and-forget; upload failure is logged
// and never blocks message flow.
func (s *Store) GetOrCreate(ctx context.Context, roomID string) ([]byte, error) {
	if exported, ok := s.cache.Get(roomID); ok {
		key, err := Import(exported)
		if err == nil {
			return key, nil
		}
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("cached key is invalid, trying registry")
	}

	if exported, err := s.registry.FetchRoomKey(ctx, roomID); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("registry fetch failed")
	} else if exported != "" {
		key, err := Import(exported)
		if err != nil {
			return nil, fmt.Errorf("registry returned invalid key: %w", err)
		}
		if err := s.cache.Put(roomID, exported); err != nil {
			s.log.Warn().Err(err).Str("room_id", roomID).Msg("failed to cache room key")
		}
		return key, nil
	}

	key, err := Generate()
	if err != nil {
		return nil, err
	}
	exported := Export(key)
	if err := s.cache.Put(roomID, exported); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("failed to cache room key")
	}

	go func() {
		if err := s.registry.UploadRoomKey(context.Background(), roomID, exported); err != nil {
			s.log.Warn().Err(err).Str("room_id", roomID).Msg("room key upload failed")
		}
	}()

	return key, nil
}

// Generate returns fresh random key material.
func Generate() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return key, nil
}

// Export encodes raw key material for storage or network transit.
func Export(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// Import decodes an exported key back to raw material. Export and
// Import are lossless inverses.
func Import(exported string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(exported)
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: %d, expected %d", len(key), KeySize)
	}
	return key, nil
}
