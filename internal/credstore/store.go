// Package credstore persists the client session across restarts. It is
// passive state plus persistence; teardown of dependent components is owned
// by the sync controller.
package credstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"chat-client/internal/models"
)

// Store holds the single persisted session for this client instance.
type Store struct {
	db *sqlx.DB
}

// Open initializes the sqlite-backed store under dir and runs migrations.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := sqlx.Connect("sqlite", filepath.Join(dir, "session.db"))
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS session (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            identity TEXT NOT NULL,
            token TEXT NOT NULL,
            last_room TEXT NOT NULL DEFAULT '',
            joined BOOLEAN NOT NULL DEFAULT FALSE,
            instance_id TEXT NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the persisted session, reporting whether one exists.
func (s *Store) Load() (models.Session, bool, error) {
	var sess models.Session
	err := s.db.Get(&sess, `SELECT identity, token, last_room, joined, instance_id, updated_at FROM session WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, false, nil
	}
	if err != nil {
		return models.Session{}, false, fmt.Errorf("load session: %w", err)
	}
	return sess, true, nil
}

// Save stores the session, replacing any previous one. A missing instance id
// is minted here so it stays stable across logins on the same machine.
func (s *Store) Save(sess models.Session) error {
	if sess.InstanceID == "" {
		if prev, ok, _ := s.Load(); ok {
			sess.InstanceID = prev.InstanceID
		}
	}
	if sess.InstanceID == "" {
		sess.InstanceID = uuid.NewString()
	}

	_, err := s.db.Exec(
		`INSERT INTO session (id, identity, token, last_room, joined, instance_id, updated_at)
         VALUES (1, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
            identity = excluded.identity,
            token = excluded.token,
            last_room = excluded.last_room,
            joined = excluded.joined,
            instance_id = excluded.instance_id,
            updated_at = excluded.updated_at`,
		sess.Identity, sess.Token, sess.LastRoom, sess.Joined, sess.InstanceID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SaveLastRoom records the active room without touching the credential.
func (s *Store) SaveLastRoom(room string, joined bool) error {
	res, err := s.db.Exec(
		`UPDATE session SET last_room = ?, joined = ?, updated_at = ? WHERE id = 1`,
		room, joined, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save last room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("no session to update")
	}
	return nil
}

// Clear removes the persisted session.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM session WHERE id = 1`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
