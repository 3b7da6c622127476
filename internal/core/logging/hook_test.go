package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHook(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(ContextHook{})

	ctx := WithSessionID(context.Background(), "sess-1")
	ctx = WithTaskID(ctx, "task-9")

	logger.Info().Ctx(ctx).Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sess-1", entry["session_id"])
	assert.Equal(t, "task-9", entry["task_id"])
}

func TestContextHook_NoContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(ContextHook{})

	logger.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasSession := entry["session_id"]
	assert.False(t, hasSession)
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetSessionID(ctx))
	assert.Empty(t, GetTaskID(ctx))

	ctx = WithSessionID(ctx, "s")
	ctx = WithTaskID(ctx, "t")
	assert.Equal(t, "s", GetSessionID(ctx))
	assert.Equal(t, "t", GetTaskID(ctx))
}
