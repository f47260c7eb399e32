// Package storage opens the database/sql handle backing the inventory and change reserve.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vending/pkg/storage/memorydriver"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Supported backends.
const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
)

// Config selects the backend and where it keeps its data.
type Config struct {
	Type string
	Path string
}

// Open returns a ready-to-use handle with the schema in place plus a cleanup function that
// flushes and releases the backend.
func Open(ctx context.Context, cfg Config) (*sql.DB, func(), error) {
	noop := func() {}

	driverName, dsn, err := resolve(cfg)
	if err != nil {
		return nil, noop, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, noop, fmt.Errorf("unable to open %s database: %w", cfg.Type, err)
	}

	if driverName == "sqlite" {
		// SQLite allows a single writer; one connection keeps transactions from tripping over each other.
		db.SetMaxOpenConns(1)
		db.SetConnMaxIdleTime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, noop, fmt.Errorf("failed to ping %s database: %w", cfg.Type, err)
	}

	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, noop, fmt.Errorf("unable to ensure schema: %w", err)
	}

	cleanup := func() {
		db.Close()
		if driverName == memorydriver.DriverName {
			memorydriver.Close(dsn)
		}
	}
	return db, cleanup, nil
}

// resolve maps the configured backend onto a registered driver and its data source name.
func resolve(cfg Config) (string, string, error) {
	switch cfg.Type {
	case TypeMemory, "":
		path := cfg.Path
		if path == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return "", "", err
			}
			path = filepath.Join(cwd, "vending-memory.json")
		}
		return memorydriver.DriverName, path, nil
	case TypeSQLite:
		path := cfg.Path
		if path == "" {
			path = "vending.db"
		}
		if !strings.HasPrefix(path, "file:") {
			abs, err := filepath.Abs(path)
			if err != nil {
				return "", "", fmt.Errorf("failed to resolve database path: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return "", "", fmt.Errorf("failed to create database directory: %w", err)
			}
			path = abs
		}
		return "sqlite", buildConnectionString(path), nil
	default:
		return "", "", fmt.Errorf("unsupported db type %s", cfg.Type)
	}
}

// buildConnectionString applies the PRAGMAs a money-handling store wants on every connection.
func buildConnectionString(path string) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(FULL)"
	connStr += "&_pragma=busy_timeout(5000)"
	connStr += "&_pragma=foreign_keys(1)"
	return connStr
}

// EnsureSchema executes CREATE TABLE statements so every backend exposes the same layout.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
                        id INTEGER PRIMARY KEY,
                        name TEXT NOT NULL UNIQUE COLLATE NOCASE,
                        price INTEGER NOT NULL CHECK (price > 0),
                        quantity INTEGER NOT NULL CHECK (quantity >= 0)
                )`,
		`CREATE TABLE IF NOT EXISTS denominations (
                        value INTEGER PRIMARY KEY,
                        quantity INTEGER NOT NULL CHECK (quantity >= 0)
                )`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// WithTransaction runs fn inside a transaction. A returned error or a panic rolls the
// transaction back; otherwise it is committed.
func WithTransaction(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(tx)
	return err
}
