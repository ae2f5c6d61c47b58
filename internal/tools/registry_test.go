package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintforge/sprintforge/internal/upstream"
)

const echoSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["value"],
  "properties": {"value": {"type": "string", "minLength": 1}}
}`

func echoTool(name string) Tool {
	return Tool{
		Name:        name,
		InputSchema: echoSchema,
		Handler: func(_ context.Context, input json.RawMessage) (any, error) {
			var in struct {
				Value string `json:"value"`
			}
			_ = json.Unmarshal(input, &in)

			return in.Value, nil
		},
	}
}

func TestRegistry_InvokeSuccess(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(echoTool("echo")))

	envelope := reg.Invoke(context.Background(), "echo", json.RawMessage(`{"value":"hi"}`))

	assert.True(t, envelope.Success)
	assert.Equal(t, "echo", envelope.ToolName)
	assert.Equal(t, "hi", envelope.Result)
	assert.Nil(t, envelope.Error)
}

func TestRegistry_UnknownTool(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)

	envelope := reg.Invoke(context.Background(), "missing", nil)

	require.NotNil(t, envelope.Error)
	assert.False(t, envelope.Success)
	assert.Equal(t, string(upstream.KindNotFound), envelope.Error.Kind)
}

func TestRegistry_ValidationFailureSkipsHandler(t *testing.T) {
	t.Parallel()

	called := false

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(Tool{
		Name:        "strict",
		InputSchema: echoSchema,
		Handler: func(_ context.Context, _ json.RawMessage) (any, error) {
			called = true

			return nil, nil
		},
	}))

	envelope := reg.Invoke(context.Background(), "strict", json.RawMessage(`{"value":123}`))

	require.NotNil(t, envelope.Error)
	assert.Equal(t, string(upstream.KindValidation), envelope.Error.Kind)
	assert.False(t, called)

	// Field paths are reported in details.
	fields, ok := envelope.Error.Details["fields"].([]string)
	require.True(t, ok)
	require.NotEmpty(t, fields)
	assert.Contains(t, fields[0], "value")
}

func TestRegistry_MissingRequiredField(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(echoTool("echo")))

	envelope := reg.Invoke(context.Background(), "echo", json.RawMessage(`{}`))

	require.NotNil(t, envelope.Error)
	assert.Equal(t, string(upstream.KindValidation), envelope.Error.Kind)
}

func TestRegistry_QuotaExhaustion(t *testing.T) {
	t.Parallel()

	tool := echoTool("limited")
	tool.QuotaPerMinute = 2

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(tool))

	input := json.RawMessage(`{"value":"x"}`)

	assert.True(t, reg.Invoke(context.Background(), "limited", input).Success)
	assert.True(t, reg.Invoke(context.Background(), "limited", input).Success)

	third := reg.Invoke(context.Background(), "limited", input)
	require.NotNil(t, third.Error)
	assert.Equal(t, string(upstream.KindRateLimit), third.Error.Kind)
}

func TestRegistry_DeadlineEnforced(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(Tool{
		Name:     "slow",
		Deadline: 20 * time.Millisecond,
		Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
			<-ctx.Done()

			return nil, ctx.Err()
		},
	}))

	envelope := reg.Invoke(context.Background(), "slow", nil)

	require.NotNil(t, envelope.Error)
	assert.Equal(t, string(upstream.KindUpstreamTimeout), envelope.Error.Kind)
	assert.Equal(t, "tool execution exceeded its deadline", envelope.Error.Message)
}

func TestRegistry_ErrorEnhancement(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(Tool{
		Name: "failing",
		Handler: func(_ context.Context, _ json.RawMessage) (any, error) {
			return nil, upstream.NewError(upstream.KindAuth, "upstream rejected credentials",
				errors.New("401 from tracker"))
		},
	}))

	envelope := reg.Invoke(context.Background(), "failing", nil)

	require.NotNil(t, envelope.Error)
	assert.Equal(t, string(upstream.KindAuth), envelope.Error.Kind)
	assert.Equal(t, "upstream rejected credentials", envelope.Error.Message)
	assert.NotEmpty(t, envelope.Error.Suggestion)

	// Original text lives in debug, not in the user-facing message.
	assert.Contains(t, envelope.Error.Debug, "401 from tracker")
	assert.NotContains(t, envelope.Error.Message, "401")
}

func TestRegistry_RedactsUntypedErrors(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(Tool{
		Name: "panicky",
		Handler: func(_ context.Context, _ json.RawMessage) (any, error) {
			return nil, errors.New("dial tcp 10.0.0.1: connection refused")
		},
	}))

	envelope := reg.Invoke(context.Background(), "panicky", nil)

	require.NotNil(t, envelope.Error)
	assert.Equal(t, string(upstream.KindInternal), envelope.Error.Kind)
	assert.Equal(t, "tool execution failed", envelope.Error.Message)
	assert.Contains(t, envelope.Error.Debug, "connection refused")
}

func TestRegistry_Stats(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(echoTool("echo")))

	reg.Invoke(context.Background(), "echo", json.RawMessage(`{"value":"a"}`))
	reg.Invoke(context.Background(), "echo", json.RawMessage(`{}`))

	stats := reg.Stats()["echo"]
	assert.Equal(t, int64(2), stats.Invocations)
	assert.Equal(t, int64(1), stats.Errors)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(echoTool("echo")))
	require.Error(t, reg.Register(echoTool("echo")))
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(echoTool("zeta")))
	require.NoError(t, reg.Register(echoTool("alpha")))

	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
}
