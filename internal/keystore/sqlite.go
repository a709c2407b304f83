package keystore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteCache persists room keys across client sessions. It is the
// file-backed counterpart of MemoryCache.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (creating if needed) the key cache database.
// If dbPath is empty, defaults to "./data/roomkeys.db".
func NewSQLiteCache(ctx context.Context, dbPath string) (*SQLiteCache, error) {
	if dbPath == "" {
		dbPath = "./data/roomkeys.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	cache := &SQLiteCache{db: db}
	if err := cache.initSchema(ctx); err != nil {
		return nil, err
	}

	return cache, nil
}

func (c *SQLiteCache) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_keys (
		room_id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (c *SQLiteCache) Close() {
	c.db.Close()
}

// Get returns the exported key for a room.
func (c *SQLiteCache) Get(roomID string) (string, bool) {
	var key string
	err := c.db.QueryRow(`SELECT key FROM room_keys WHERE room_id = ?`, roomID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) || err != nil {
		return "", false
	}
	return key, true
}

// Put stores the exported key for a room, replacing any previous entry.
func (c *SQLiteCache) Put(roomID, key string) error {
	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO room_keys (room_id, key, created_at)
		VALUES (?, ?, ?)
	`, roomID, key, time.Now())
	return err
}
