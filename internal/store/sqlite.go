package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/clinicbot/margot/internal/models"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite session store. The DSN comes
// from WithSQLiteDSN; a plain file path works.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SQLiteDSN == "" {
		return nil, fmt.Errorf("sqlite store requires a DSN")
	}

	db, err := sql.Open("sqlite3", cfg.SQLiteDSN)
	if err != nil {
		slog.Error("SQLiteStore failed to open database", "error", err, "dsn", cfg.SQLiteDSN)
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("SQLiteStore failed to ping database", "error", err, "dsn", cfg.SQLiteDSN)
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		slog.Error("SQLiteStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run sqlite migrations: %w", err)
	}

	slog.Info("SQLiteStore initialized", "dsn", cfg.SQLiteDSN)
	return &SQLiteStore{db: db}, nil
}

// GetSession loads the sender's session, or (nil, nil) when none exists.
func (s *SQLiteStore) GetSession(sender string) (*models.Session, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM sessions WHERE sender = ?", sender).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetSession query failed", "error", err, "sender", sender)
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		slog.Error("SQLiteStore.GetSession unmarshal failed", "error", err, "sender", sender)
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// SaveSession upserts the session row.
func (s *SQLiteStore) SaveSession(session *models.Session) error {
	session.UpdatedAt = time.Now()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO sessions (sender, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(sender) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		session.Sender, string(data), session.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore.SaveSession upsert failed", "error", err, "sender", session.Sender)
		return fmt.Errorf("failed to save session: %w", err)
	}
	slog.Debug("SQLiteStore.SaveSession: session saved", "sender", session.Sender, "state", session.SchedulingStatus)
	return nil
}

// DeleteSession removes the sender's session row if present.
func (s *SQLiteStore) DeleteSession(sender string) error {
	if _, err := s.db.Exec("DELETE FROM sessions WHERE sender = ?", sender); err != nil {
		slog.Error("SQLiteStore.DeleteSession failed", "error", err, "sender", sender)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
