// Package store provides the SQLite mirror behind the read-through cache:
// wallet balances, transactions with their instruction legs, and PnL
// summaries with per-token breakdowns.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite handle. SQLite gets a single write connection; the
// driver serializes access.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and runs migrations.
// Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_hash TEXT NOT NULL UNIQUE,
		status           TEXT,
		block_time       INTEGER,
		fee              INTEGER,
		signer           TEXT,
		source           TEXT,
		inserted_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS instructions (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id   INTEGER NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		program          TEXT,
		instruction_type TEXT,
		from_address     TEXT,
		to_address       TEXT,
		lamports         INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_instructions_tx ON instructions(transaction_id);

	CREATE TABLE IF NOT EXISTS wallet_balances (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		address          TEXT NOT NULL UNIQUE,
		balance_lamports INTEGER,
		balance_sol      REAL,
		token            TEXT,
		source           TEXT,
		retrieved_at     DATETIME
	);

	CREATE TABLE IF NOT EXISTS wallet_pnl_summary (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		wallet_address TEXT NOT NULL UNIQUE,
		summary        TEXT,
		source         TEXT,
		retrieved_at   DATETIME
	);

	CREATE TABLE IF NOT EXISTS wallet_pnl_tokens (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		summary_id     INTEGER NOT NULL REFERENCES wallet_pnl_summary(id) ON DELETE CASCADE,
		wallet_address TEXT,
		token          TEXT,
		details        TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_pnl_tokens_summary ON wallet_pnl_tokens(summary_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
