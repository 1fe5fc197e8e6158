// Package database provides test database helpers. Each test gets its own
// sqlite file under t.TempDir with the requested migration set applied, so
// tests stay isolated and parallel-safe.
package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentfleet/substrate/pkg/database"
)

// NewTestClient creates a migrated test database client. The connection and
// file are cleaned up when the test ends.
func NewTestClient(t *testing.T, migrationSet string) *database.Client {
	t.Helper()
	ctx := context.Background()

	client, err := database.NewClient(ctx, database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MigrationSet: migrationSet,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

// NewMemoryClient creates a test client with the memory engine schema.
func NewMemoryClient(t *testing.T) *database.Client {
	t.Helper()
	return NewTestClient(t, database.MigrationSetMemory)
}

// NewRuntimeClient creates a test client with the agent runtime schema.
func NewRuntimeClient(t *testing.T) *database.Client {
	t.Helper()
	return NewTestClient(t, database.MigrationSetRuntime)
}
