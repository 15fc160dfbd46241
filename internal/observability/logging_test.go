package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mediapipe/internal/config"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithDocument(ctx, "docs/a.md")
	ctx = WithPhase(ctx, "download")

	lc := GetContext(ctx)
	assert.Equal(t, LogContext{RunID: "run-1", Document: "docs/a.md", Phase: "download"}, lc)
}

func TestNewLoggerAddsContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, config.LoggingConfig{Format: "json", Info: true, Warn: true, Error: true}, false)

	ctx := WithPhase(WithRunID(context.Background(), "run-9"), "probe")
	logger.InfoContext(ctx, "probed", "path", "/m/a.png")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "run-9", rec["run_id"])
	assert.Equal(t, "probe", rec["phase"])
	assert.Equal(t, "/m/a.png", rec["path"])
}

func TestLevelFilterSuppressesIndependently(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, config.LoggingConfig{Format: "text", Info: false, Warn: true, Error: false}, true)

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("error line")

	out := buf.String()
	assert.Contains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "warn line")
	assert.NotContains(t, out, "error line")
}

func TestLevelFilterWithAttrsKeepsSwitches(t *testing.T) {
	var buf bytes.Buffer
	h := NewLevelFilter(slog.NewTextHandler(&buf, nil), true, false, true)
	logger := slog.New(h).With("component", "download")

	logger.Warn("hidden")
	logger.Info("shown")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "component=download")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
	assert.NotNil(t, OrDefault(nil))
}
