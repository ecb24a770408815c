package correlation

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for range 100 {
		id := NewID()
		require.Len(t, id, 8)
		assert.Equal(t, id, FromHeader(id), "generated ids are valid header values")
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 100)
}

func TestFromHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"upstream trace id", "req-42_A", true},
		{"uuid", "6f1c2a9e-5b7d-4c1e-9a3f-2d8e7b6c5a41", true},
		{"max length", strings.Repeat("a", maxIDLength), true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", maxIDLength+1), false},
		{"space", "has space", false},
		{"log injection", "abc\nlevel=ERROR", false},
		{"quote", `x"y`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := FromHeader(tt.header)
			if tt.keep {
				assert.Equal(t, tt.header, id)
				return
			}
			assert.NotEqual(t, tt.header, id)
			assert.Len(t, id, 8)
		})
	}
}

func TestID(t *testing.T) {
	_, ok := ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok, "an empty id counts as missing")

	id, ok := ID(WithID(context.Background(), "batch-7"))
	assert.True(t, ok)
	assert.Equal(t, "batch-7", id)
}

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(NewHandler(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestHandler_TagsRefreshJobLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf)

	ctx := WithID(context.Background(), "a1b2c3d4")
	logger.InfoContext(ctx, "Refresh queue: job done", "neighborhood", "Park Slope")

	line := decodeLine(t, &buf)
	assert.Equal(t, "a1b2c3d4", line["correlation_id"])
	assert.Equal(t, "Park Slope", line["neighborhood"])
}

func TestHandler_UntaggedWithoutID(t *testing.T) {
	var buf bytes.Buffer
	newJSONLogger(&buf).InfoContext(context.Background(), "Application starting")

	assert.NotContains(t, decodeLine(t, &buf), "correlation_id")
}

func TestHandler_WithAttrsAndGroupKeepTagging(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf).With("component", "scheduler").WithGroup("batch")

	logger.InfoContext(WithID(context.Background(), "cron-1"), "Scheduler: batch complete", "refreshed", 3)

	line := decodeLine(t, &buf)
	assert.Equal(t, "scheduler", line["component"])
	batch, ok := line["batch"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), batch["refreshed"])
	assert.Equal(t, "cron-1", batch["correlation_id"], "record attrs land in the open group")
}
