package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sprintforge/sprintforge/internal/mcp"
	"github.com/sprintforge/sprintforge/internal/tools"
)

const echoSchema = `{
	"type": "object",
	"properties": {"message": {"type": "string"}},
	"required": ["message"],
	"additionalProperties": false
}`

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()

	reg := tools.NewRegistry(nil)

	require.NoError(t, reg.Register(tools.Tool{
		Name:        "echo",
		Description: "Echoes the input message.",
		InputSchema: echoSchema,
		Handler: func(_ context.Context, raw json.RawMessage) (any, error) {
			var input struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(raw, &input); err != nil {
				return nil, err
			}

			return input.Message, nil
		},
	}))

	return reg
}

func startServer(t *testing.T, srv *mcp.Server) (*mcpsdk.ClientSession, context.Context) {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		<-serverDone
	})

	return session, ctx
}

func TestServer_ListsRegistryTools(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{
		Registry: newTestRegistry(t),
		Version:  "1.2.3",
	})

	assert.Equal(t, []string{"echo"}, srv.ListToolNames())

	session, ctx := startServer(t, srv)

	toolsResult, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, toolsResult.Tools, 1)
	assert.Equal(t, "echo", toolsResult.Tools[0].Name)
	assert.NotEmpty(t, toolsResult.Tools[0].Description)
}

func TestServer_CallTool_Success(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{Registry: newTestRegistry(t)})

	session, ctx := startServer(t, srv)

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"message": "hello"},
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	var envelope tools.Envelope
	require.NoError(t, json.Unmarshal([]byte(text.Text), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "echo", envelope.ToolName)
	assert.Equal(t, "hello", envelope.Result)
}

func TestServer_CallTool_ValidationFailure(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{Registry: newTestRegistry(t)})

	session, ctx := startServer(t, srv)

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"message": 42},
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	var envelope tools.Envelope
	require.NoError(t, json.Unmarshal([]byte(text.Text), &envelope))
	assert.False(t, envelope.Success)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "ValidationError", envelope.Error.Kind)
}
