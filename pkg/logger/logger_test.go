package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: FormatJSON})

	log.With(Component("ledger")).Info("points granted", UserID("u1"), Points(40), Err(errors.New("boom")))
	log.Debug("filtered out")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "points granted", entry["message"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "ledger", entry["component"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.EqualValues(t, 40, entry["points"])
	assert.Equal(t, "boom", entry["error"])
}

func TestFromContext(t *testing.T) {
	l := Nop()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
