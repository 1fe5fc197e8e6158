package database

import (
	"fmt"
	"time"
)

// Migration set names, matching the embedded directories under migrations/.
const (
	MigrationSetMemory  = "memory"
	MigrationSetRuntime = "runtime"
)

// Config holds SQLite database configuration.
type Config struct {
	// Path is the database file location. Parent directories are created on open.
	Path string

	// MigrationSet selects which embedded migration directory to apply.
	MigrationSet string

	// BusyTimeout bounds how long a connection waits on a locked database
	// before failing. Zero means the 30s default.
	BusyTimeout time.Duration
}

// DSN renders the sqlite connection string with the busy timeout and foreign
// key enforcement applied.
func (c Config) DSN() string {
	timeout := c.BusyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", c.Path, timeout.Milliseconds())
}
