package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/itohio/cellbms/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	cfg := config.Default().Logging
	cfg.Format = "xml"

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_WritesRotatedFile(t *testing.T) {
	cfg := config.Default().Logging
	cfg.Format = "json"
	cfg.Level = "debug"
	cfg.File = filepath.Join(t.TempDir(), "cellsim.log")

	log, err := New(cfg)
	require.NoError(t, err)
	log.Debug("cell module started")
	_ = log.Sync()

	data, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"cell module started"`)
	assert.Contains(t, string(data), `"level":"debug"`)
}

func TestRotator(t *testing.T) {
	cfg := config.Default().Logging
	cfg.File = "cell.log"

	r := Rotator(cfg)
	assert.Equal(t, "cell.log", r.Filename)
	assert.Equal(t, 10, r.MaxSize)
	assert.Equal(t, 3, r.MaxBackups)
	assert.Equal(t, 28, r.MaxAge)
}
