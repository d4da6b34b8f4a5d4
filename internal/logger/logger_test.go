package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     slog.Level
	}{
		{
			name:     "debug level",
			logLevel: "debug",
			want:     slog.LevelDebug,
		},
		{
			name:     "info level",
			logLevel: "info",
			want:     slog.LevelInfo,
		},
		{
			name:     "warn level",
			logLevel: "warn",
			want:     slog.LevelWarn,
		},
		{
			name:     "warning alias",
			logLevel: "warning",
			want:     slog.LevelWarn,
		},
		{
			name:     "error level",
			logLevel: "error",
			want:     slog.LevelError,
		},
		{
			name:     "invalid level defaults to info",
			logLevel: "invalid",
			want:     slog.LevelInfo,
		},
		{
			name:     "empty level defaults to info",
			logLevel: "",
			want:     slog.LevelInfo,
		},
		{
			name:     "case insensitive DEBUG",
			logLevel: "DEBUG",
			want:     slog.LevelDebug,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.logLevel))
		})
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	assert.False(t, log.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, log.Enabled(context.Background(), slog.LevelWarn))

	log.Warn("Poll failed", "outcome", "failed")
	assert.Contains(t, buf.String(), "msg=\"Poll failed\"")
	assert.Contains(t, buf.String(), "outcome=failed")
}

func TestSetupNoErrors(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	// Verify Setup can be called multiple times without panic
	Setup("info")
	Setup("debug")
	Setup("warn")
	Setup("error")

	assert.NotNil(t, slog.Default())
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelError))
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelWarn))
}
