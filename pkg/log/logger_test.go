package log_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loomworks/loom/pkg/log"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter("loom", "1.0.0", slog.LevelInfo, &buf)
	logger.Info("hello", log.TraceID("t1"), log.StepName("order-saver"))

	var entry map[string]any
	err := json.Unmarshal(buf.Bytes(), &entry)
	assert.NoError(t, err)
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "loom", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Equal(t, "t1", entry["trace_id"])
	assert.Equal(t, "order-saver", entry["step"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter("loom", "1.0.0", slog.LevelWarn, &buf)
	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, log.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, log.ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, log.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, log.ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, log.ParseLevel("verbose"))
}

func TestErrorAttr(t *testing.T) {
	attr := log.Error(nil)
	assert.Equal(t, "", attr.Value.String())

	attr = log.Error(assert.AnError)
	assert.Equal(t, assert.AnError.Error(), attr.Value.String())
}

func TestFlowsAttr(t *testing.T) {
	type flowLabel string
	attr := log.Flows([]flowLabel{"orders", "billing"})
	assert.Equal(t, "flows", attr.Key)
	assert.Equal(t, []string{"orders", "billing"}, attr.Value.Any())
}
