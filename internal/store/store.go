package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names a supported database/sql driver
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// ParseDialect validates a configured driver name
func ParseDialect(driver string) (Dialect, error) {
	switch d := Dialect(driver); d {
	case DialectPostgres, DialectSQLite:
		return d, nil
	case "sqlite":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// Store is the auction ledger. It owns the connection pool; every
// operation acquires its connection or transaction per call.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	sb      squirrel.StatementBuilderType
}

// NewStore creates a new database store
func NewStore(driver, databaseURL string) (*Store, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(string(dialect), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var placeholder squirrel.PlaceholderFormat = squirrel.Dollar
	if dialect == DialectSQLite {
		// SQLite allows a single writer; one connection keeps every
		// statement serialized instead of failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		placeholder = squirrel.Question

		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		db:      db,
		dialect: dialect,
		sb:      squirrel.StatementBuilder.PlaceholderFormat(placeholder),
	}, nil
}

// applyPragmas sets required SQLite configuration
func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect returns the driver the store was opened with
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
