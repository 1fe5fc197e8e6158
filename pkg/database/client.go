// Package database provides the SQLite client and migration utilities shared
// by the memory and runtime services.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // Register sqlite3 driver for database/sql
)

// Client wraps the sqlx handle and remembers the file it was opened on.
type Client struct {
	*sqlx.DB
	path string
}

// Path returns the database file location.
func (c *Client) Path() string {
	return c.path
}

// NewClientFromDB wraps an existing sqlx handle (useful for testing).
func NewClientFromDB(db *sqlx.DB, path string) *Client {
	return &Client{DB: db, path: path}
}

// NewClient opens the database file, creating it and its parent directories
// if needed, applies pending migrations, and returns a ready client.
//
// The pool is pinned to a single connection: sqlite permits one writer at a
// time and the services serialize every statement through the same handle, so
// a wider pool only manufactures SQLITE_BUSY contention.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MigrationSet == "" {
		return nil, fmt.Errorf("migration set is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sqlx.Open("sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Run migrations
	if err := runMigrations(db.DB, cfg.MigrationSet); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{DB: db, path: cfg.Path}, nil
}
