package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/clinicbot/margot/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions in a Postgres database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to Postgres and ensures the schema exists. The
// DSN comes from WithPostgresDSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres store requires a DSN")
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		slog.Error("PostgresStore failed to open database", "error", err)
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("PostgresStore failed to ping database", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		db.Close()
		slog.Error("PostgresStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run postgres migrations: %w", err)
	}

	slog.Info("PostgresStore initialized")
	return &PostgresStore{db: db}, nil
}

// GetSession loads the sender's session, or (nil, nil) when none exists.
func (s *PostgresStore) GetSession(sender string) (*models.Session, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM sessions WHERE sender = $1", sender).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetSession query failed", "error", err, "sender", sender)
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		slog.Error("PostgresStore.GetSession unmarshal failed", "error", err, "sender", sender)
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// SaveSession upserts the session row.
func (s *PostgresStore) SaveSession(session *models.Session) error {
	session.UpdatedAt = time.Now()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO sessions (sender, data, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (sender) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		session.Sender, data, session.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore.SaveSession upsert failed", "error", err, "sender", session.Sender)
		return fmt.Errorf("failed to save session: %w", err)
	}
	slog.Debug("PostgresStore.SaveSession: session saved", "sender", session.Sender, "state", session.SchedulingStatus)
	return nil
}

// DeleteSession removes the sender's session row if present.
func (s *PostgresStore) DeleteSession(sender string) error {
	if _, err := s.db.Exec("DELETE FROM sessions WHERE sender = $1", sender); err != nil {
		slog.Error("PostgresStore.DeleteSession failed", "error", err, "sender", sender)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
