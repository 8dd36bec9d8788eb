// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/verte-zerg/tapgoose/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// SessionNamespace is the fixed key of the persisted session record.
const SessionNamespace = "auth-storage"

// Store wraps SQLite access for client state.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS auth_storage (
			namespace TEXT PRIMARY KEY,
			token TEXT,
			username TEXT,
			is_admin INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// LoadSession reads the persisted session. A missing record yields the zero
// session.
func (s *Store) LoadSession(ctx context.Context) (model.Session, error) {
	var (
		token    sql.NullString
		username sql.NullString
		isAdmin  bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, username, is_admin FROM auth_storage WHERE namespace = ?`,
		SessionNamespace,
	).Scan(&token, &username, &isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, nil
	}
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{
		Token:    token.String,
		Username: username.String,
		IsAdmin:  isAdmin,
	}, nil
}

// SaveSession replaces the persisted session record.
func (s *Store) SaveSession(ctx context.Context, session model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_storage (namespace, token, username, is_admin, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET
			token = excluded.token,
			username = excluded.username,
			is_admin = excluded.is_admin,
			updated_at = excluded.updated_at`,
		SessionNamespace,
		nullString(session.Token),
		nullString(session.Username),
		session.IsAdmin,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
