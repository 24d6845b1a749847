package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce-planner/logging"
)

func TestNew_InjectsRunContext(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "info", Format: "json"}, &buf)

	ctx := logging.WithRun(context.Background(), "abc-123", 2)
	ctx = logging.WithStage(ctx, "existing-assignment")
	logger.With("component", "driver").InfoContext(ctx, "solved", "status", "optimal")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "abc-123", rec["run_id"])
	assert.Equal(t, float64(2), rec["run"])
	assert.Equal(t, "existing-assignment", rec["stage"])
	assert.Equal(t, "driver", rec["component"])
	assert.Equal(t, "optimal", rec["status"])
	assert.Contains(t, rec, "timestamp")
	assert.Equal(t, "abc-123", logging.RunID(ctx))
}

func TestNew_LevelAndFormat(t *testing.T) {
	tests := map[string]struct {
		cfg      logging.Config
		log      func(*slog.Logger)
		expected string
		empty    bool
	}{
		"DebugFilteredAtInfo": {
			cfg:   logging.Config{Level: "info"},
			log:   func(l *slog.Logger) { l.Debug("hidden") },
			empty: true,
		},
		"WarnPassesAtWarn": {
			cfg:      logging.Config{Level: "warn", Format: "text"},
			log:      func(l *slog.Logger) { l.Warn("clamped", "state", "CA") },
			expected: "state=CA",
		},
		"UnknownLevelDefaultsToInfo": {
			cfg:      logging.Config{Level: "chatty"},
			log:      func(l *slog.Logger) { l.Info("hello") },
			expected: `"msg":"hello"`,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(logging.New(tt.cfg, &buf))
			if tt.empty {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tt.expected)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.log")
	logger := logging.New(logging.Config{File: path, MaxSize: 1}, nil)
	logger.Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to file"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel(""))
}
