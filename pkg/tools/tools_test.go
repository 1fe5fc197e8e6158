package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// startSession connects a client to srv over an in-memory transport pair and
// returns the live session.
func startSession(t *testing.T, srv *mcp.Server) *mcp.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	go func() {
		_ = srv.Run(context.Background(), serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{
		Name: "substrate-test", Version: "test",
	}, nil)

	session, err := client.Connect(context.Background(), clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = session.Close() })
	return session
}

// callTool invokes a tool and decodes its JSON text content into out.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.False(t, result.IsError, "tool %s returned protocol error: %v", name, result.Content)
	require.NotEmpty(t, result.Content)

	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "tool %s returned non-text content", name)
	// Reset out so fields omitted from this payload do not retain values
	// from a previous decode into the same variable.
	reflect.ValueOf(out).Elem().SetZero()
	require.NoError(t, json.Unmarshal([]byte(tc.Text), out), "tool %s returned invalid JSON: %s", name, tc.Text)
}

// toolNames lists the registered tools of a connected session.
func toolNames(t *testing.T, session *mcp.ClientSession) []string {
	t.Helper()

	listed, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, len(listed.Tools))
	for i, tool := range listed.Tools {
		names[i] = tool.Name
	}
	return names
}
