package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/vulnbridge/internal/config"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func TestInitializeJSONFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "vulnbridge",
	}, buf)

	GetLogger().Named("test").Info("fetch complete", zap.Int("issues", 3))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "fetch complete", entry["msg"])
	assert.Equal(t, "vulnbridge.test", entry["logger"])
	assert.EqualValues(t, 3, entry["issues"])
}

func TestInitializeRespectsLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{
		Level:       "warn",
		Format:      "json",
		ServiceName: "vulnbridge",
	}, buf)

	GetLogger().Info("should be filtered")
	assert.Zero(t, buf.Len())

	GetLogger().Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestInitializeBadLevelDefaultsToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{
		Level:       "chatty",
		Format:      "json",
		ServiceName: "vulnbridge",
	}, buf)

	GetLogger().Debug("filtered at info")
	assert.Zero(t, buf.Len())
	GetLogger().Info("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestInitializeRunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &syncBuffer{}
	second := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "a"}, first)
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "b"}, second)

	GetLogger().Info("hello")
	assert.Contains(t, first.String(), "hello")
	assert.Zero(t, second.Len())
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}
