package config

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, Config{
		LogLevel: "info",
		Source:   SourceConfig{Kind: SourceStdin, Addr: "127.0.0.1:8080"},
	}, cfg)
	assert.Equal(t, time.Duration(0), cfg.ReportWindow())
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(`
log_level: "debug"
source: {
	kind: "http"
	addr: "0.0.0.0:9000"
}
journal:          "vigil.db"
report_window_ms: 1500
`), "vigil.cue")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, SourceHTTP, cfg.Source.Kind)
	assert.Equal(t, "0.0.0.0:9000", cfg.Source.Addr)
	assert.Equal(t, "vigil.db", cfg.Journal)
	assert.Equal(t, 1500*time.Millisecond, cfg.ReportWindow())
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`source: kind: "http"`), "vigil.cue")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:8080", cfg.Source.Addr)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown field", `bogus: 1`},
		{"bad source kind", `source: kind: "udp"`},
		{"bad log level", `log_level: "loud"`},
		{"negative window", `report_window_ms: -5`},
		{"addr without port", `source: addr: "localhost"`},
		{"syntax", `log_level: `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.cue")
			require.Error(t, err)
			assert.True(t, IsConfigError(err), "got %T: %v", err, err)
		})
	}
}

func TestCheck(t *testing.T) {
	assert.Empty(t, Check([]byte(`log_level: "warn"`), "ok.cue"))

	errs := Check([]byte(`source: kind: "udp"`), "bad.cue")
	require.NotEmpty(t, errs)
	for _, err := range errs {
		assert.True(t, IsConfigError(err))
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.cue")
	require.NoError(t, os.WriteFile(path, []byte(`log_level: "error"`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, cfg.Level())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestError_Format(t *testing.T) {
	e := &Error{Field: "source.kind", Message: "bad value"}
	assert.Equal(t, "source.kind: bad value", e.Error())

	e = &Error{Message: "oops"}
	assert.Equal(t, "config: oops", e.Error())
}
