package logging

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

func TestNew(t *testing.T) {
	t.Run("json output respects level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New("warn", "json", &buf)
		require.NoError(t, err)

		logger.Info("dropped")
		logger.Warn("kept", "slot_index", 3)

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
		assert.Equal(t, "kept", record["msg"])
		assert.EqualValues(t, 3, record["slot_index"])
	})

	t.Run("text output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New("debug", "TEXT", &buf)
		require.NoError(t, err)
		logger.Debug("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		_, err := New("loud", "json", &bytes.Buffer{})
		assert.Error(t, err)
		_, err = New("info", "xml", &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestContextLogger(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))

	logger := slog.New(slog.DiscardHandler)
	derived := ContextWithLogger(ctx, logger)
	assert.Same(t, logger, FromContext(derived))
	assert.Equal(t, ctx, ContextWithLogger(ctx, nil))
}
