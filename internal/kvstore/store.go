// Package kvstore is the persistent key-value string store that backs the
// offline queues. Values are whole documents (JSON arrays); callers replace
// them wholesale, there is no partial update API.
package kvstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const dbFile = "queue.db"

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store is a SQLite-backed string store.
type Store struct {
	conn *sql.DB
	dir  string
}

// Open opens (creating if needed) the store under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open("sqlite", filepath.Join(dir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets the daemon read while a CLI invocation writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=2000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	// Queue writes must survive power loss at the counter
	conn.Exec("PRAGMA synchronous=FULL")

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{conn: conn, dir: dir}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// GetItem returns the value stored under key. ok is false when the key is absent.
func (s *Store) GetItem(key string) (value string, ok bool, err error) {
	err = s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get item %q: %w", key, err)
	}
	return value, true, nil
}

// SetItem replaces the value stored under key.
func (s *Store) SetItem(key, value string) error {
	return s.withWriteLock(func() error {
		_, err := s.conn.Exec(`
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value)
		if err != nil {
			return fmt.Errorf("set item %q: %w", key, err)
		}
		return nil
	})
}

// UpdateItem reads key, passes the current value to fn and stores what fn
// returns, all under the write lock and one transaction. If fn returns an
// error nothing is written.
func (s *Store) UpdateItem(key string, fn func(value string, ok bool) (string, error)) error {
	return s.withWriteLock(func() error {
		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		var cur string
		ok := true
		err = tx.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			ok = false
		} else if err != nil {
			return fmt.Errorf("get item %q: %w", key, err)
		}

		next, err := fn(cur, ok)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, next); err != nil {
			return fmt.Errorf("set item %q: %w", key, err)
		}
		return tx.Commit()
	})
}

// withWriteLock runs fn under the cross-process lock. A failed release is
// reported alongside fn's own result.
func (s *Store) withWriteLock(fn func() error) (err error) {
	l := newFileLock(s.dir)
	if err := l.acquire(defaultTimeout); err != nil {
		return err
	}
	defer func() { err = errors.Join(err, l.release()) }()
	return fn()
}
