// Package store provides persistence for conversation sessions.
//
// Three implementations share one interface: InMemoryStore for tests and
// throwaway runs, SQLiteStore for single-host deployments, and PostgresStore
// for anything shared. Sessions are keyed by sender address and serialized
// as JSON so the schema does not chase every session field.
package store

import (
	"log/slog"
	"strings"

	"github.com/clinicbot/margot/internal/models"
)

// Store defines the session persistence interface.
//
// GetSession returns (nil, nil) when no session exists for the sender;
// callers treat that as "start a fresh conversation", not as an error.
type Store interface {
	GetSession(sender string) (*models.Session, error)
	SaveSession(session *models.Session) error
	DeleteSession(sender string) error
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	// PostgresDSN is the Postgres connection string.
	PostgresDSN string
	// SQLiteDSN is the SQLite file path or DSN.
	SQLiteDSN string
}

// Option configures store Opts.
type Option func(*Opts)

// WithPostgresDSN sets the Postgres DSN to use.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		slog.Debug("Store WithPostgresDSN option applied", "dsn_empty", dsn == "")
		o.PostgresDSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite DSN to use.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		slog.Debug("Store WithSQLiteDSN option applied", "dsn_empty", dsn == "")
		o.SQLiteDSN = dsn
	}
}

// DetectDSNType inspects a DSN string and reports which driver it belongs
// to: "postgres", "sqlite", or "unknown".
func DetectDSNType(dsn string) string {
	if dsn == "" {
		return "unknown"
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	// Key=value form, e.g. "host=localhost user=margot dbname=margot".
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") || strings.Contains(dsn, "user=") {
		return "postgres"
	}
	if strings.HasPrefix(dsn, "file:") || strings.HasSuffix(dsn, ".db") || strings.HasSuffix(dsn, ".sqlite") || strings.HasSuffix(dsn, ".sqlite3") {
		return "sqlite"
	}
	// A bare path with no URL scheme is assumed to be a SQLite file.
	if !strings.Contains(dsn, "://") && !strings.Contains(dsn, "=") {
		return "sqlite"
	}
	return "unknown"
}
