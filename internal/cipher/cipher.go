// Package cipher implements the authenticated wire envelope for chat
// message bodies. Encryption is best-effort transport hardening: any
// internal failure degrades to plaintext (encrypt) or a rendered
// sentinel (decrypt) rather than blocking the chat session.
package cipher

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/typow21/group-chat-gpt-frontend/internal/models"
)

const (
	// EncryptedPrefix marks an encrypted message body on the wire.
	// Bodies without it are treated as plaintext (pre-encryption
	// history, peers without encryption support).
	EncryptedPrefix = "ENC:"

	// DecryptFailedText is rendered in place of a body that could not
	// be decrypted. A single bad message must never crash the session.
	DecryptFailedText = "[Unable to decrypt message]"

	nonceSize = chacha20poly1305.NonceSize
	tagSize   = 16
)

// KeySource supplies the symmetric key for a room.
type KeySource interface {
	GetOrCreate(ctx context.Context, roomID string) ([]byte, error)
}

// Codec encrypts and decrypts message bodies using per-room keys.
type Codec struct {
	keys KeySource
	log  zerolog.Logger
}

// New creates a Codec backed by the given key source.
func New(keys KeySource, log zerolog.Logger) *Codec {
	return &Codec{keys: keys, log: log.With().Str("component", "cipher").Logger()}
}

// IsEncrypted reports whether a wire body carries the encrypted prefix.
func IsEncrypted(body string) bool {
	return strings.HasPrefix(body, EncryptedPrefix)
}

// Encrypt seals plaintext for a room and returns the wire envelope
// "ENC:" + base64(nonce || ciphertext+tag). On any failure it returns
// the plaintext unchanged.
func (c *Codec) Encrypt(ctx context.Context, roomID, plaintext string) string {
	wire, err := c.seal(ctx, roomID, plaintext)
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Msg("encryption failed, sending plaintext")
		return plaintext
	}
	return wire
}

func (c *Codec) seal(ctx context.Context, roomID, plaintext string) (string, error) {
	key, err := c.keys.GetOrCreate(ctx, roomID)
	if err != nil {
		return "", fmt.Errorf("room key unavailable: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}

	// A fresh random nonce per message. Reusing a nonce under the
	// same key breaks the AEAD's guarantees.
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), nil)

	wire := make([]byte, 0, nonceSize+len(ciphertext))
	wire = append(wire, nonce...)
	wire = append(wire, ciphertext...)

	return EncryptedPrefix + base64.StdEncoding.EncodeToString(wire), nil
}

// Decrypt opens a wire body for a room. Bodies without the encrypted
// prefix pass through unchanged. A body that fails to decrypt yields
// DecryptFailedText.
func (c *Codec) Decrypt(ctx context.Context, roomID, body string) string {
	if !IsEncrypted(body) {
		return body
	}

	plaintext, err := c.open(ctx, roomID, body)
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Msg("decryption failed")
		return DecryptFailedText
	}
	return plaintext
}

func (c *Codec) open(ctx context.Context, roomID, body string) (string, error) {
	wire, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(body, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("invalid base64 envelope: %w", err)
	}
	if len(wire) < nonceSize+tagSize {
		return "", fmt.Errorf("envelope too short: %d bytes", len(wire))
	}

	key, err := c.keys.GetOrCreate(ctx, roomID)
	if err != nil {
		return "", fmt.Errorf("room key unavailable: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}

	nonce := wire[:nonceSize]
	ciphertext := wire[nonceSize:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: wrong key or tampered envelope")
	}
	return string(plaintext), nil
}

// DecryptBatch maps Decrypt over a message list, preserving order and
// all other fields. Each body is decoded independently; one failure
// does not abort the batch. Nil and empty inputs are returned as-is.
func (c *Codec) DecryptBatch(ctx context.Context, roomID string, messages []models.Message) []models.Message {
	if len(messages) == 0 {
		return messages
	}

	out := make([]models.Message, len(messages))
	for i, msg := range messages {
		msg.Content = c.Decrypt(ctx, roomID, msg.Content)
		out[i] = msg
	}
	return out
}
