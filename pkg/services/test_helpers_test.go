package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentfleet/substrate/pkg/database"
	testdb "github.com/agentfleet/substrate/test/database"
)

// newMemoryClient returns a migrated memory-engine test database.
func newMemoryClient(t *testing.T) *database.Client {
	t.Helper()
	return testdb.NewMemoryClient(t)
}

// newRuntimeClient returns a migrated agent-runtime test database.
func newRuntimeClient(t *testing.T) *database.Client {
	t.Helper()
	return testdb.NewRuntimeClient(t)
}

// mustCreateEntity inserts one entity and returns its record.
func mustCreateEntity(t *testing.T, svc *EntityService, name, entityType string, observations []string) EntityRecord {
	t.Helper()
	result, err := svc.CreateEntities(context.Background(), []EntityInput{{
		Name:         name,
		EntityType:   entityType,
		Observations: observations,
	}})
	require.NoError(t, err)
	require.Equal(t, 1, result.Created, "entity %q should be created: %v", name, result.ErrorMessages)
	return result.Entities[0]
}

func ptr[T any](v T) *T {
	return &v
}
