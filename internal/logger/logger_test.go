package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(&Config{Level: level, Format: "json", Output: &buf, ServiceName: "test"}), &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &m), raw)
		lines = append(lines, m)
	}
	return lines
}

func TestContextLogger(t *testing.T) {
	log, buf := newBufferLogger("info")

	ctx := log.WithContext(context.Background())
	ctx = SetRunID(ctx, "run-1")
	ctx = SetComponent(ctx, "similarity")
	ctx = WithField(ctx, FieldProductID, "42")

	FromContext(ctx).Info("hello")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "hello", lines[0]["message"])
	assert.Equal(t, "run-1", lines[0][FieldRunID])
	assert.Equal(t, "similarity", lines[0][FieldComponent])
	assert.Equal(t, "42", lines[0][FieldProductID])
	assert.Equal(t, "test", lines[0]["service"])
}

func TestFromContextOr(t *testing.T) {
	fallback, _ := newBufferLogger("info")
	assert.Same(t, fallback, FromContextOr(context.Background(), fallback))
	assert.Same(t, GetDefault(), FromContextOr(context.Background(), nil))

	attached, _ := newBufferLogger("info")
	ctx := attached.WithContext(context.Background())
	assert.Same(t, attached, FromContextOr(ctx, fallback))
}

func TestEntry_MetricFields(t *testing.T) {
	log, buf := newBufferLogger("debug")
	ctx := log.WithField(FieldRequestID, "req-1").WithContext(context.Background())

	With(Fields{"route": "/x"}).
		WithCount(3).
		WithSize(128).
		WithDuration(1500*time.Millisecond).
		Info(ctx, "done %d", 1)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "done 1", line["message"])
	assert.Equal(t, "req-1", line[FieldRequestID])
	assert.Equal(t, float64(3), line[FieldCount])
	assert.Equal(t, float64(128), line[FieldSize])
	assert.Equal(t, float64(1500), line[FieldDurationMs])
	assert.Equal(t, "/x", line["route"])
}

func TestEntry_StatusLevel(t *testing.T) {
	log, buf := newBufferLogger("debug")
	ctx := log.WithContext(context.Background())

	With(nil).Status(ctx, http.StatusOK, "ok")
	With(nil).Status(ctx, http.StatusNotFound, "missing")
	With(nil).Status(ctx, http.StatusBadGateway, "upstream")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "warning", lines[1]["level"])
	assert.Equal(t, "error", lines[2]["level"])
	assert.Equal(t, float64(http.StatusBadGateway), lines[2][FieldStatus])
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferLogger("warn")
	log.Info("dropped")
	log.Warn("kept")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["message"])
}

func TestEnvConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_MAX_SIZE", "not-a-number")
	t.Setenv("LOG_COMPRESS", "false")

	cfg := LoadFromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.False(t, cfg.Compress)

	named := cfg.WithServiceName("stylematch-seed")
	assert.Equal(t, "stylematch-seed", named.ServiceName)
	assert.Equal(t, "stylematch", cfg.ServiceName)
	assert.Equal(t, cfg.ServiceName, cfg.WithServiceName("").ServiceName)
}
